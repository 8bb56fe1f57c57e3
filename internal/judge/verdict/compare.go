package verdict

import (
	"bufio"
	"bytes"
	"io"
	"unicode"
)

const maxLineBytes = 64 << 20

// Compare reports whether actual matches expected line by line, ignoring
// trailing whitespace on each line and trailing blank lines of both streams.
// A read failure on either stream counts as a mismatch.
func Compare(expected, actual io.Reader) bool {
	expScan := newLineScanner(expected)
	actScan := newLineScanner(actual)

	for {
		exp, hasExp := scanTrimRight(expScan)
		act, hasAct := scanTrimRight(actScan)

		if !hasExp && !hasAct {
			return expScan.Err() == nil && actScan.Err() == nil
		}
		if !bytes.Equal(exp, act) {
			return false
		}
		if hasExp && hasAct {
			continue
		}
		// one side ended; whatever is left on the other must be blank
		return onlyBlankLeft(actScan) && onlyBlankLeft(expScan)
	}
}

func newLineScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return sc
}

func scanTrimRight(sc *bufio.Scanner) ([]byte, bool) {
	if sc.Scan() {
		return bytes.TrimRightFunc(sc.Bytes(), unicode.IsSpace), true
	}
	return nil, false
}

func onlyBlankLeft(sc *bufio.Scanner) bool {
	for sc.Scan() {
		if len(bytes.TrimRightFunc(sc.Bytes(), unicode.IsSpace)) != 0 {
			return false
		}
	}
	return sc.Err() == nil
}
