package harvest

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/helixir/paper-harvester/internal/domain"
)

// DefaultGroup labels queries given as a bare list.
const DefaultGroup = "section 1"

// LoadQueryFile reads grouped queries from a YAML or JSON file.
func LoadQueryFile(path string) (map[string][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening query file: %w", err)
	}
	defer f.Close()

	return ParseQueries(f)
}

// ParseQueries decodes grouped queries. The document is either a mapping of
// group label to queries or a bare list, which becomes DefaultGroup. Queries
// under a group may be nested lists; they are flattened in document order.
// Blank queries and groups left empty are dropped.
func ParseQueries(r io.Reader) (map[string][]string, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return map[string][]string{}, nil
		}
		return nil, fmt.Errorf("decoding queries: %w", err)
	}

	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}

	groups := make(map[string][]string)
	switch root.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(root.Content); i += 2 {
			label := strings.TrimSpace(root.Content[i].Value)
			if label == "" {
				return nil, domain.NewValidationError("group", fmt.Sprintf("blank group label at line %d", root.Content[i].Line))
			}
			if queries := flattenNode(root.Content[i+1]); len(queries) > 0 {
				groups[label] = append(groups[label], queries...)
			}
		}
	case yaml.SequenceNode:
		if queries := flattenNode(root); len(queries) > 0 {
			groups[DefaultGroup] = queries
		}
	default:
		return nil, domain.NewValidationError("queries", "expected a mapping of groups or a list of queries")
	}

	return groups, nil
}

func flattenNode(n *yaml.Node) []string {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			return nil
		}
		if q := strings.TrimSpace(n.Value); q != "" {
			return []string{q}
		}
	case yaml.SequenceNode:
		var out []string
		for _, child := range n.Content {
			out = append(out, flattenNode(child)...)
		}
		return out
	case yaml.AliasNode:
		if n.Alias != nil {
			return flattenNode(n.Alias)
		}
	}
	return nil
}
