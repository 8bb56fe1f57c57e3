package testdata

import "testing"

func TestBackendJSONMatchesBackendSerialization(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"compact object", `{"b":1,"a":[1,2.50,true,null]}`, `{"b": 1, "a": [1, 2.50, true, null]}`},
		{"spaced input", "{ \"tasks\" : [ ] ,\n \"x\":{} }", `{"tasks": [], "x": {}}`},
		{"non ascii", `{"name":"é中😀"}`, `{"name": "\u00e9\u4e2d\ud83d\ude00"}`},
		{"escapes", `["a\"b\\c\n\u0001/<>"]`, `["a\"b\\c\n\u0001/<>"]`},
		{"scalar", `"x"`, `"x"`},
	}
	for _, tc := range cases {
		got, err := backendJSON([]byte(tc.in))
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if string(got) != tc.want {
			t.Fatalf("%s: got %s want %s", tc.name, got, tc.want)
		}
	}
}

func TestBackendJSONRejectsMalformed(t *testing.T) {
	for _, in := range []string{`{"a":`, `[1,]`, `{} {}`, ``} {
		if _, err := backendJSON([]byte(in)); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}
