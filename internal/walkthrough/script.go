package walkthrough

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Script is a recorded walkthrough, replayed through a Form by the CLI. YAML
// and JSON are both accepted.
//
//	location: Canada - Quebec
//	dataHall: Island 1
//	hasIssues: true
//	racks:
//	  - location: X2401
//	    powerSupplyUnit: true
//	    psuDetails: {status: Powered-Off, psuId: PSU1, uHeight: U12}
type Script struct {
	Location  string      `yaml:"location"`
	DataHall  string      `yaml:"dataHall"`
	HasIssues *bool       `yaml:"hasIssues"`
	Racks     []RackPatch `yaml:"racks"`
}

// LoadScript reads a script file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return ParseScript(data)
}

// ParseScript decodes a script.
func ParseScript(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	return &s, nil
}

// Replay drives f through the script the way a technician would fill the
// form: pick the hall, answer hasIssues, then fill one rack entry per item.
func (s *Script) Replay(f *Form) {
	f.SetLocationAndHall(s.Location, s.DataHall)
	if s.HasIssues == nil {
		return
	}
	f.SetHasIssues(*s.HasIssues)
	if !*s.HasIssues {
		return
	}
	for i, patch := range s.Racks {
		var id string
		if i == 0 {
			id = f.RackIDs()[0]
		} else {
			id, _ = f.AddRack()
		}
		f.UpdateRack(id, patch)
	}
}
