// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jllopis/steward/pkg/errors"
)

// Step is one delegation in a workflow. Position is 1-based.
type Step struct {
	Position   int
	AgentID    string
	Task       string
	OutputPath string
	// InputFile points the step at an artifact of an earlier step.
	InputFile string
	Verify    bool
}

// stepSpec is the wire shape of a step. verify_output defaults to true.
type stepSpec struct {
	AgentID      string `json:"agent_id" yaml:"agent_id"`
	Task         string `json:"task" yaml:"task"`
	OutputPath   string `json:"output_path" yaml:"output_path"`
	InputFile    string `json:"input_file,omitempty" yaml:"input_file,omitempty"`
	VerifyOutput *bool  `json:"verify_output,omitempty" yaml:"verify_output,omitempty"`
}

// Definition is a named workflow as stored in a file.
type Definition struct {
	Name  string
	Steps []Step
}

type definitionFile struct {
	Name  string     `json:"name" yaml:"name"`
	Steps []stepSpec `json:"steps" yaml:"steps"`
}

// ParseSteps converts decoded operation arguments (a JSON array of step
// objects) into validated steps.
func ParseSteps(raw any) ([]Step, error) {
	if raw == nil {
		return nil, invalid("steps must be an array")
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "steps are not serializable", err)
	}
	var specs []stepSpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return nil, invalid("steps must be an array of step objects")
	}
	return buildSteps(specs)
}

func buildSteps(specs []stepSpec) ([]Step, error) {
	steps := make([]Step, 0, len(specs))
	for i, s := range specs {
		verify := true
		if s.VerifyOutput != nil {
			verify = *s.VerifyOutput
		}
		steps = append(steps, Step{
			Position:   i + 1,
			AgentID:    strings.TrimSpace(s.AgentID),
			Task:       s.Task,
			OutputPath: strings.TrimSpace(s.OutputPath),
			InputFile:  strings.TrimSpace(s.InputFile),
			Verify:     verify,
		})
	}
	if err := Validate(steps); err != nil {
		return nil, err
	}
	return steps, nil
}

// Validate checks the whole list before anything runs.
func Validate(steps []Step) error {
	if len(steps) == 0 {
		return invalid("workflow must have at least one step")
	}
	for i, s := range steps {
		n := i + 1
		switch {
		case s.AgentID == "":
			return invalid(fmt.Sprintf("Step %d: missing agent_id", n))
		case strings.TrimSpace(s.Task) == "":
			return invalid(fmt.Sprintf("Step %d: missing task", n))
		case s.OutputPath == "":
			return invalid(fmt.Sprintf("Step %d: missing output_path", n))
		}
	}
	return nil
}

func invalid(msg string) error {
	return errors.New(errors.CodeInvalidInput, msg, nil)
}

// taskWithInput appends the input file pointer to the step task.
func (s Step) taskWithInput() string {
	if s.InputFile == "" {
		return s.Task
	}
	return fmt.Sprintf("%s\n\n*** INPUT FILE ***\nRead the input from: %s\nUse this as your source material.", s.Task, s.InputFile)
}
