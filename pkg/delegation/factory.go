// SPDX-License-Identifier: Apache-2.0

package delegation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jllopis/steward/pkg/errors"
	"github.com/jllopis/steward/pkg/governance"
)

const maxAgentIDLen = 50

// AllowedTools is the closed set of operation names a profile may list.
var AllowedTools = []string{
	"web_search",
	"web_fetch",
	"read_file",
	"write_file",
	"edit_file",
	"bash",
	"glob",
	"grep",
	"list_files",
	"verify_file_exists",
}

// DefaultConstraints are added to every created profile.
var DefaultConstraints = []string{
	"CANNOT modify system files or configuration",
	"MUST save all output to specified files",
	"MUST report errors to output files, not just log them",
}

// Template is a predefined profile shape.
type Template struct {
	ID    string
	Role  string
	Tools []string
}

// Templates lists the predefined profiles offered by create_agent_config.
var Templates = []Template{
	{ID: "zilla", Role: "Journalistic Researcher - performs web research and gathers data",
		Tools: []string{"web_search", "web_fetch", "write_file", "read_file", "bash"}},
	{ID: "gonza", Role: "Journalistic Writer - transforms research into articles",
		Tools: []string{"read_file", "write_file"}},
	{ID: "file-organizer", Role: "File Organizer - organizes and manages files",
		Tools: []string{"read_file", "write_file", "bash", "glob", "list_files"}},
	{ID: "code-assistant", Role: "Code Assistant - helps with coding tasks",
		Tools: []string{"read_file", "write_file", "edit_file", "bash", "grep"}},
}

// LookupTemplate finds a template by id.
func LookupTemplate(id string) (Template, bool) {
	for _, t := range Templates {
		if t.ID == id {
			return t, true
		}
	}
	return Template{}, false
}

func templateIDs() []string {
	ids := make([]string, 0, len(Templates))
	for _, t := range Templates {
		ids = append(ids, t.ID)
	}
	return ids
}

// ValidateAgentID accepts lowercase letters, digits and single hyphens,
// up to 50 characters, not starting or ending with a hyphen.
func ValidateAgentID(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("agent_id cannot be empty")
	case len(id) > maxAgentIDLen:
		return fmt.Errorf("agent_id too long (max %d characters)", maxAgentIDLen)
	}
	for _, c := range id {
		if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '-') {
			return fmt.Errorf("use only lowercase letters, numbers, and hyphens, e.g. 'research-agent-1'")
		}
	}
	if strings.HasPrefix(id, "-") || strings.HasSuffix(id, "-") {
		return fmt.Errorf("agent_id cannot start or end with hyphen")
	}
	if strings.Contains(id, "--") {
		return fmt.Errorf("agent_id cannot contain consecutive hyphens")
	}
	return nil
}

// CreateRequest holds the inputs of create_agent_config.
type CreateRequest struct {
	AgentID     string
	Name        string
	Role        string
	Tools       []string
	Template    string
	Constraints []string
}

// Factory writes validated profiles under <storage>/agents.
type Factory struct {
	storageDir string
	filter     *governance.ToolFilter
	now        func() time.Time
}

// NewFactory creates a factory rooted at storageDir.
func NewFactory(storageDir string) *Factory {
	return &Factory{
		storageDir: storageDir,
		filter:     governance.NewToolFilter(governance.WithAllowlist(AllowedTools)),
		now:        time.Now,
	}
}

// Create validates req, builds the profile and writes it atomically.
// It returns the profile and the path it was written to.
func (f *Factory) Create(ctx context.Context, req CreateRequest) (*Profile, string, error) {
	id := strings.TrimSpace(req.AgentID)
	if err := ValidateAgentID(id); err != nil {
		return nil, "", errors.New(errors.CodeInvalidInput, fmt.Sprintf("Invalid agent_id '%s'", id), err)
	}

	name, role, tools := req.Name, req.Role, req.Tools
	if req.Template != "" {
		tpl, ok := LookupTemplate(req.Template)
		if !ok {
			return nil, "", errors.Newf(errors.CodeInvalidInput, "Unknown template '%s'. Available templates: %s",
				req.Template, strings.Join(templateIDs(), ", "))
		}
		if name == "" {
			name = tpl.ID
		}
		if role == "" {
			role = tpl.Role
		}
		tools = tpl.Tools
	}
	switch {
	case strings.TrimSpace(name) == "":
		return nil, "", errors.New(errors.CodeInvalidInput, "Missing required parameter: name", nil)
	case strings.TrimSpace(role) == "":
		return nil, "", errors.New(errors.CodeInvalidInput, "Missing required parameter: role", nil)
	}

	valid, err := f.validateTools(ctx, tools)
	if err != nil {
		return nil, "", err
	}

	p := &Profile{
		ID:           id,
		Name:         name,
		Role:         role,
		Description:  "Specialized agent for " + strings.ToLower(role),
		Tools:        valid,
		Constraints:  mergeConstraints(DefaultConstraints, req.Constraints),
		OutputFormat: FormatStructuredJSON,
		CreatedAt:    f.now().UTC().Format(time.RFC3339),
		Version:      "1.0",
	}

	path := ProfilePath(f.storageDir, id)
	if err := writeProfileAtomic(path, p); err != nil {
		return nil, "", errors.New(errors.CodeInternal, "failed to save agent config", err).WithContext("path", path)
	}
	return p, path, nil
}

func (f *Factory) validateTools(ctx context.Context, tools []string) ([]string, error) {
	valid, invalid := f.filter.Partition(ctx, tools)
	if len(invalid) > 0 {
		return nil, errors.Newf(errors.CodeInvalidInput, "Invalid tools requested: %s. Allowed tools: %s",
			strings.Join(invalid, ", "), strings.Join(AllowedTools, ", "))
	}
	if len(valid) == 0 {
		return nil, errors.New(errors.CodeInvalidInput, "At least one tool must be specified", nil)
	}
	return valid, nil
}

func mergeConstraints(base, extra []string) []string {
	out := make([]string, 0, len(base)+len(extra))
	seen := make(map[string]bool, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, c := range list {
			c = strings.TrimSpace(c)
			if c == "" || seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// writeProfileAtomic writes to a temp file in the target directory, syncs
// it, reads it back, and renames it into place.
func writeProfileAtomic(path string, p *Profile) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	back, err := os.ReadFile(tmpName)
	if err != nil {
		return err
	}
	if !bytes.Equal(back, data) {
		return fmt.Errorf("read-back mismatch for %s", tmpName)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
