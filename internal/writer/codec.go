package writer

import (
	"bufio"
	"io"

	jsoniter "github.com/json-iterator/go"
)

// jsonCodec encodes records; decoding keeps numbers as json.Number so integer
// partition fields survive a round trip exactly.
var jsonCodec = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

// maxLineSize bounds a single JSON line.
const maxLineSize = 16 << 20

// EncodeJSONL writes records as JSON Lines.
func EncodeJSONL(w io.Writer, records []interface{}) error {
	enc := jsonCodec.NewEncoder(w)
	for _, record := range records {
		if err := enc.Encode(record); err != nil {
			return err
		}
	}
	return nil
}

// DecodeJSONL reads JSON Lines, skipping blank lines.
func DecodeJSONL(r io.Reader) ([]interface{}, error) {
	var records []interface{}
	err := ScanJSONL(r, func(record interface{}) error {
		records = append(records, record)
		return nil
	})
	return records, err
}

// ScanJSONL decodes JSON Lines one record at a time.
func ScanJSONL(r io.Reader, fn func(record interface{}) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var record interface{}
		if err := jsonCodec.Unmarshal(line, &record); err != nil {
			return err
		}
		if err := fn(record); err != nil {
			return err
		}
	}
	return scanner.Err()
}
