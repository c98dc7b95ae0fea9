// Package intake turns markdown files dropped into an orders directory
// into pending work items. It is the offline way onto the queue; the
// product's own admin surface writes to the store directly.
package intake

import (
	"bytes"
	"errors"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrEmptyOrder is returned for files with no description text.
var ErrEmptyOrder = errors.New("order has no description")

// Frontmatter represents the YAML frontmatter in order files
type Frontmatter struct {
	Requester string `yaml:"requester"`
	Title     string `yaml:"title"`
}

// Order is one parsed work order.
type Order struct {
	Requester   string
	Description string
}

// ParseOrder extracts an order from markdown content. Frontmatter is
// optional; a title there becomes the first line of the description.
func ParseOrder(content []byte) (*Order, error) {
	fm, body, err := parseFrontmatter(content)
	if err != nil {
		return nil, err
	}

	description := strings.TrimSpace(string(body))
	if fm.Title != "" {
		if description == "" {
			description = fm.Title
		} else {
			description = fm.Title + "\n\n" + description
		}
	}
	if description == "" {
		return nil, ErrEmptyOrder
	}

	return &Order{
		Requester:   fm.Requester,
		Description: description,
	}, nil
}

// parseFrontmatter splits YAML frontmatter from markdown content
func parseFrontmatter(content []byte) (*Frontmatter, []byte, error) {
	if !bytes.HasPrefix(content, []byte("---\n")) {
		return &Frontmatter{}, content, nil
	}

	rest := content[4:]
	endIdx := bytes.Index(rest, []byte("\n---"))
	if endIdx == -1 {
		return &Frontmatter{}, content, nil
	}

	fmData := rest[:endIdx]
	remaining := rest[endIdx+4:] // skip \n---

	var fm Frontmatter
	if err := yaml.Unmarshal(fmData, &fm); err != nil {
		return nil, nil, err
	}

	return &fm, bytes.TrimLeft(remaining, "\n"), nil
}
