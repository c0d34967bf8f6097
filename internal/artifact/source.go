package artifact

import (
	"fmt"
	"os"
	"strings"
)

type SourceType string

const (
	SourceTypeHuggingface SourceType = "huggingface"
	SourceTypeFile        SourceType = "file"
	SourceTypeS3          SourceType = "s3"
)

type Source struct {
	Type     SourceType
	Location string
	Raw      string
}

func (s *Source) String() string {
	return s.Raw
}

// ParseSource classifies a locator. Explicit prefixes win; otherwise an
// existing directory or a path-like string is local and anything else is a
// registry identifier such as "t5-base" or "org/name".
func ParseSource(locator string) (*Source, error) {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return nil, fmt.Errorf("%w: empty locator", ErrUnresolvable)
	}

	src := &Source{Raw: locator}
	switch {
	case strings.HasPrefix(locator, "hf:"):
		src.Type = SourceTypeHuggingface
		src.Location = strings.TrimPrefix(locator, "hf:")
	case strings.HasPrefix(locator, "file:"):
		src.Type = SourceTypeFile
		src.Location = strings.TrimPrefix(locator, "file:")
	case strings.HasPrefix(locator, "s3://"):
		src.Type = SourceTypeS3
		src.Location = strings.TrimPrefix(locator, "s3://")
	case isPathLike(locator):
		src.Type = SourceTypeFile
		src.Location = locator
	default:
		src.Type = SourceTypeHuggingface
		src.Location = locator
	}

	if src.Location == "" {
		return nil, fmt.Errorf("%w: empty location in %q", ErrUnresolvable, locator)
	}
	if src.Type == SourceTypeHuggingface && strings.Count(src.Location, "/") > 1 {
		return nil, fmt.Errorf("%w: invalid repository id %q", ErrUnresolvable, src.Location)
	}
	if src.Type == SourceTypeS3 {
		if _, _, err := splitS3Location(src.Location); err != nil {
			return nil, err
		}
	}

	return src, nil
}

func isPathLike(locator string) bool {
	if strings.HasPrefix(locator, "/") || strings.HasPrefix(locator, "./") ||
		strings.HasPrefix(locator, "../") || strings.HasPrefix(locator, "~") {
		return true
	}

	info, err := os.Stat(locator)
	return err == nil && info.IsDir()
}

func splitS3Location(location string) (bucket, prefix string, err error) {
	bucket, prefix, _ = strings.Cut(location, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("%w: s3 locator has no bucket", ErrUnresolvable)
	}
	return bucket, strings.Trim(prefix, "/"), nil
}
