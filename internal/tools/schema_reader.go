package tools

import "bytes"

// bytesReader adapts a json.RawMessage (a []byte alias) to an io.Reader for
// jsonschema.Compiler.AddResource.
func bytesReader(b []byte) *bytes.Reader {
	return bytes.NewReader(b)
}
