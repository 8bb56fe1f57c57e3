package job_test

import (
	"testing"

	"judgehost/internal/judge/job"
)

func TestJobConstructors(t *testing.T) {
	c := job.Compile("s1")
	if c.Kind != job.KindCompile || c.Key() != "" || c.String() != "compile(s1)" {
		t.Fatalf("unexpected compile job %+v", c)
	}

	e := job.Execute("s1", 1, 3)
	if e.Kind != job.KindExecute || e.Key() != "0103" || e.String() != "execute(s1/0103)" {
		t.Fatalf("unexpected execute job %+v", e)
	}

	r := e.Requeued().Requeued()
	if r.Requeues != 2 || e.Requeues != 0 {
		t.Fatalf("requeue must copy: original %d, copy %d", e.Requeues, r.Requeues)
	}
	if r.Key() != e.Key() {
		t.Fatalf("requeue must keep identity")
	}
}

func TestTaggedKeepsEpochAcrossRequeue(t *testing.T) {
	j := job.Execute("s1", 0, 0).Tagged(7).Requeued()
	if j.Epoch != 7 || j.Requeues != 1 {
		t.Fatalf("unexpected job %+v", j)
	}
}
