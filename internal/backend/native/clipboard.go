package native

import (
	"fmt"

	"github.com/atotto/clipboard"

	"github.com/hanzoai/aci/internal/operation"
)

func (b *Backend) clipboardGet() (*operation.Result, error) {
	text, err := clipboard.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("cannot read clipboard: %w", err)
	}
	return operation.Ok(map[string]any{
		"text": text,
	}), nil
}

func (b *Backend) clipboardSet(req *operation.Request) (*operation.Result, error) {
	text := req.StringArg("text")
	if err := clipboard.WriteAll(text); err != nil {
		return nil, fmt.Errorf("cannot write clipboard: %w", err)
	}
	return operation.Ok(map[string]any{
		"written": len(text),
	}), nil
}
