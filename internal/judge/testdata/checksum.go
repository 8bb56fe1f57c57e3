package testdata

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf16"
)

// checksum is the md5 the backend publishes for a problem: the zip bytes followed by
// the meta rendered as the backend serializes it.
func checksum(zipData, metaJSON []byte) (string, error) {
	canonical, err := backendJSON(metaJSON)
	if err != nil {
		return "", err
	}
	h := md5.New()
	h.Write(zipData)
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// backendJSON re-encodes a JSON document with ", " and ": " separators, non-ASCII
// escaped as \uXXXX and object keys in their original order. Number literals are kept as sent.
func backendJSON(data []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var buf bytes.Buffer
	if err := writeValue(&buf, dec); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after json value")
	}
	return buf.Bytes(), nil
}

func writeValue(buf *bytes.Buffer, dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	switch v := tok.(type) {
	case json.Delim:
		object := v == '{'
		closing := byte(']')
		if object {
			closing = '}'
		}
		buf.WriteByte(byte(v))
		for i := 0; dec.More(); i++ {
			if i > 0 {
				buf.WriteString(", ")
			}
			if object {
				key, err := dec.Token()
				if err != nil {
					return err
				}
				name, ok := key.(string)
				if !ok {
					return fmt.Errorf("unexpected object key %v", key)
				}
				writeString(buf, name)
				buf.WriteString(": ")
			}
			if err := writeValue(buf, dec); err != nil {
				return err
			}
		}
		if _, err := dec.Token(); err != nil {
			return err
		}
		buf.WriteByte(closing)
	case string:
		writeString(buf, v)
	case json.Number:
		buf.WriteString(v.String())
	case bool:
		if v {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case nil:
		buf.WriteString("null")
	}
	return nil
}

func writeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		default:
			switch {
			case r >= 0x10000:
				hi, lo := utf16.EncodeRune(r)
				fmt.Fprintf(buf, `\u%04x\u%04x`, hi, lo)
			case r < 0x20 || r >= 0x7f:
				fmt.Fprintf(buf, `\u%04x`, r)
			default:
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
}
