package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aussiebroadwan/graphconnect/pkg/formx"
)

// paramsFlag collects repeated key=value flags in order. With files
// enabled, key=@path reads path as a binary upload.
type paramsFlag struct {
	params *formx.Params
	files  bool
}

func newParamsFlag(files bool) *paramsFlag {
	return &paramsFlag{params: formx.NewParams(), files: files}
}

func (f *paramsFlag) String() string {
	if f.params == nil || f.params.Len() == 0 {
		return ""
	}
	return strings.Join(f.params.Keys(), ",")
}

func (f *paramsFlag) Type() string { return "key=value" }

func (f *paramsFlag) Set(v string) error {
	key, value, ok := strings.Cut(v, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return fmt.Errorf("expected key=value, got %q", v)
	}

	if f.files && strings.HasPrefix(value, "@") {
		path := value[1:]
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		f.params.Set(key, formx.Blob{Data: data, Filename: filepath.Base(path)})
		return nil
	}
	f.params.Set(key, value)
	return nil
}
