package chart

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bcit-ltc/forge-pipeline/domain"
	"github.com/bcit-ltc/forge-pipeline/environment"
	"github.com/bcit-ltc/forge-pipeline/version"
)

// document is a parsed YAML file that remembers whether it was modified.
type document struct {
	root    yaml.Node
	changed bool
}

func parseDocument(data []byte) (*document, error) {
	d := &document{}
	if err := yaml.Unmarshal(data, &d.root); err != nil {
		return nil, err
	}
	if d.root.Kind == 0 {
		// Empty file.
		d.root = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}
	if d.root.Kind != yaml.DocumentNode || len(d.root.Content) == 0 || d.root.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("top level must be a mapping")
	}
	return d, nil
}

// lookup returns the scalar at the dotted key, or "" when absent.
func (d *document) lookup(key string) (string, bool) {
	node := d.root.Content[0]
	for _, part := range strings.Split(key, ".") {
		if node.Kind != yaml.MappingNode {
			return "", false
		}
		next := mappingValue(node, part)
		if next == nil {
			return "", false
		}
		node = next
	}
	if node.Kind != yaml.ScalarNode {
		return "", false
	}
	return node.Value, true
}

// set writes value as a string scalar at the dotted key, creating
// intermediate mappings. Existing scalar style and comments are kept.
func (d *document) set(key, value string) error {
	node := d.root.Content[0]
	parts := strings.Split(key, ".")
	for i, part := range parts {
		if node.Kind != yaml.MappingNode {
			return fmt.Errorf("%s: %s is not a mapping", key, strings.Join(parts[:i], "."))
		}
		next := mappingValue(node, part)
		if next == nil {
			next = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			if i == len(parts)-1 {
				next = &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str"}
			}
			node.Content = append(node.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: part},
				next)
			d.changed = true
		}
		node = next
	}

	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("%s is not a scalar", key)
	}
	if node.Value == value && node.Tag == "!!str" {
		return nil
	}
	node.Value = value
	node.Tag = "!!str"
	d.changed = true
	return nil
}

func (d *document) bytes() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&d.root); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

// Edits are the values written into a chart directory.
type Edits struct {
	Version    string
	AppVersion string
	ImageTag   string
}

// EditChart sets version and appVersion in Chart.yaml content. The input is
// returned unchanged when both already match.
func EditChart(data []byte, e Edits) ([]byte, bool, error) {
	doc, err := parseDocument(data)
	if err != nil {
		return nil, false, fmt.Errorf("parse Chart.yaml: %w", err)
	}
	if err := doc.set("version", e.Version); err != nil {
		return nil, false, err
	}
	if err := doc.set("appVersion", e.AppVersion); err != nil {
		return nil, false, err
	}
	return render(data, doc)
}

// EditValues sets image.tag in values content.
func EditValues(data []byte, e Edits) ([]byte, bool, error) {
	doc, err := parseDocument(data)
	if err != nil {
		return nil, false, fmt.Errorf("parse values: %w", err)
	}
	if err := doc.set("image.tag", e.ImageTag); err != nil {
		return nil, false, err
	}
	return render(data, doc)
}

// EditHost prefixes the scalar at the dotted key in values content and
// returns the resulting host. A missing or empty host, or one already
// carrying prefix, is returned as is.
func EditHost(data []byte, key, prefix string) ([]byte, string, error) {
	doc, err := parseDocument(data)
	if err != nil {
		return nil, "", fmt.Errorf("parse values: %w", err)
	}
	host, ok := doc.lookup(key)
	if !ok || host == "" || prefix == "" || strings.HasPrefix(host, prefix) {
		return data, host, nil
	}
	if err := doc.set(key, prefix+host); err != nil {
		return nil, "", err
	}
	out, _, err := render(data, doc)
	if err != nil {
		return nil, "", err
	}
	return out, prefix + host, nil
}

func render(original []byte, doc *document) ([]byte, bool, error) {
	if !doc.changed {
		return original, false, nil
	}
	out, err := doc.bytes()
	if err != nil {
		return nil, false, err
	}
	return out, !bytes.Equal(out, original), nil
}

// HostPrefix returns the host prefix for non-stable environments: the
// review pre-release label followed by "-" for review (for example
// "issue-12-"), "latest-" for latest and "" for stable.
func HostPrefix(c environment.Classification) string {
	switch c.Environment {
	case domain.EnvironmentLatest:
		return "latest-"
	case domain.EnvironmentReview:
		return version.PreRelease(c) + "-"
	default:
		return ""
	}
}
