package sse

import (
	"fmt"
	"io"
)

// frame is one named event on the wire: "event: <name>\n data: <json>\n\n".
type frame struct {
	name string
	data []byte
}

func writeFrame(w io.Writer, f frame) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", f.name, f.data)
	return err
}
