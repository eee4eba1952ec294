package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/framegraph/internal/desc"
)

// LoadResult contains a loaded graph description.
type LoadResult struct {
	Graph *desc.Graph
	// Source is the path the description was loaded from.
	Source    string
	FileCount int // Number of CUE files read
}

// LoadError represents an error that occurred while loading a description.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
	// Problems lists every structural problem when Code is one of them.
	Problems []desc.ValidationError
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadGraph loads a graph description from a single CUE file or from the
// CUE package in a directory. Errors are *LoadError.
func LoadGraph(path string) (*LoadResult, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("graph not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing graph: %v", err)}
	}

	if !info.IsDir() {
		g, err := desc.LoadFile(path)
		if err != nil {
			return nil, convertCompileError(err, path)
		}
		if err := validateGraph(g); err != nil {
			return nil, err
		}
		return &LoadResult{Graph: g, Source: path, FileCount: 1}, nil
	}

	cueFiles, err := FindCUEFiles(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(cueFiles) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: path})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}

	g, err := desc.Compile(value)
	if err != nil {
		return nil, convertCompileError(err, path)
	}
	if err := validateGraph(g); err != nil {
		return nil, err
	}
	return &LoadResult{Graph: g, Source: path, FileCount: len(cueFiles)}, nil
}

// validateGraph rejects descriptions with structural problems. The first
// problem sets the error code.
func validateGraph(g *desc.Graph) *LoadError {
	problems := desc.Validate(g)
	if len(problems) == 0 {
		return nil
	}
	first := problems[0]
	msg := fmt.Sprintf("%s: %s", first.Field, first.Message)
	if len(problems) > 1 {
		msg = fmt.Sprintf("%s (and %d more)", msg, len(problems)-1)
	}
	return &LoadError{Code: first.Code, Message: msg, Problems: problems}
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a description error to a LoadError with
// position info.
func convertCompileError(err error, context string) *LoadError {
	var compileErr *desc.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeCUE         = "E008" // CUE evaluation error inside a field

	// Description errors
	ErrCodeExtents    = "E101" // Unknown dimension or bad count
	ErrCodeResolution = "E102" // Static or dynamic resolution
	ErrCodeSlot       = "E103" // Slot target

	// Node errors
	ErrCodeNode       = "E110" // Node-level field (side_effects, priority, ...)
	ErrCodeNodeUse    = "E111" // create, import, rename, read, modify, history
	ErrCodeNodePass   = "E112" // Render pass attachments
	ErrCodeNodeRender = "E113" // block_layer, wireframe, vrs
)

// MapFieldToErrorCode maps a description error field to an error code.
// Fields are dotted paths such as "node.scene/draw.create.albedo".
func MapFieldToErrorCode(field string) string {
	parts := strings.Split(field, ".")
	switch parts[0] {
	case "cue":
		return ErrCodeCUE
	case "extents":
		return ErrCodeExtents
	case "resolution", "dynamic_resolution":
		return ErrCodeResolution
	case "slot":
		return ErrCodeSlot
	case "node":
		if len(parts) < 3 {
			return ErrCodeNode
		}
		switch parts[2] {
		case "create", "import", "rename", "read", "modify", "history":
			return ErrCodeNodeUse
		case "pass":
			return ErrCodeNodePass
		case "block_layer", "wireframe", "vrs":
			return ErrCodeNodeRender
		}
		return ErrCodeNode
	default:
		return ErrCodeGeneric
	}
}
