// SPDX-License-Identifier: Apache-2.0

package delegation

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/jllopis/steward/pkg/errors"
)

// Output formats understood by VerifyOutput and BuildPrompt.
const (
	FormatStructuredJSON  = "structured_json"
	FormatJSON            = "json"
	FormatMarkdownArticle = "markdown_article"
	FormatMarkdown        = "markdown"
	FormatMD              = "md"
	FormatText            = "text"
)

// Profile is the declarative description of a delegated agent, stored as
// <storage>/agents/<id>.json.
type Profile struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Role         string   `json:"role"`
	Description  string   `json:"description,omitempty"`
	Tools        []string `json:"tools"`
	Constraints  []string `json:"constraints,omitempty"`
	OutputFormat string   `json:"output_format,omitempty"`
	CreatedAt    string   `json:"created_at,omitempty"`
	Version      string   `json:"version,omitempty"`
}

// Validate checks the fields the delegation engine relies on.
func (p *Profile) Validate() error {
	if p == nil {
		return errors.New(errors.CodeProfileInvalid, "profile is nil", nil)
	}
	if err := ValidateAgentID(p.ID); err != nil {
		return errors.New(errors.CodeProfileInvalid, "invalid id", err).WithContext("profile", p.ID)
	}
	if strings.TrimSpace(p.Name) == "" {
		return errors.Newf(errors.CodeProfileInvalid, "profile '%s' has no name", p.ID)
	}
	if strings.TrimSpace(p.Role) == "" {
		return errors.Newf(errors.CodeProfileInvalid, "profile '%s' has no role", p.ID)
	}
	return nil
}

// Format returns the declared output format, or "" when none is declared.
func (p *Profile) Format() string {
	return strings.ToLower(strings.TrimSpace(p.OutputFormat))
}

// ProfilePath returns where the profile with the given id lives.
func ProfilePath(storageDir, id string) string {
	return filepath.Join(storageDir, "agents", id+".json")
}

// LoadProfile reads and validates the profile with the given id.
// Ids are matched in lower case.
func LoadProfile(storageDir, id string) (*Profile, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if err := ValidateAgentID(id); err != nil {
		return nil, errors.New(errors.CodeProfileInvalid, fmt.Sprintf("invalid agent id '%s'", id), err)
	}

	path := ProfilePath(storageDir, id)
	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.Newf(errors.CodeProfileNotFound,
				"Agent config not found: %s. Create it first using create_agent_config.", path).
				WithContext("profile", id)
		}
		return nil, errors.New(errors.CodeProfileInvalid, "failed to read agent config", err).WithContext("profile", id)
	}

	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errors.New(errors.CodeProfileInvalid, "invalid agent config JSON", err).WithContext("profile", id)
	}
	if p.ID != id {
		return nil, errors.Newf(errors.CodeProfileInvalid,
			"agent id mismatch: file contains '%s', expected '%s'", p.ID, id)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}
