package desc

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// CompileString compiles a description held in memory. filename is used in
// error positions and source tags.
func CompileString(src, filename string) (*Graph, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(filename))
	return Compile(v)
}

// LoadFile compiles the description in a single CUE file.
func LoadFile(path string) (*Graph, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read description: %w", err)
	}
	return CompileString(string(src), path)
}
