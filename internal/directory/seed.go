package directory

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var defaultSeed []byte

// Seed is a complete directory snapshot used to populate a store.
type Seed struct {
	Employees     []Employee     `yaml:"employees" json:"employees"`
	Notifications []Notification `yaml:"notifications" json:"notifications"`
}

// DefaultSeed returns the built-in demo directory.
func DefaultSeed() Seed {
	s, err := ParseSeed(defaultSeed)
	if err != nil {
		panic(fmt.Sprintf("directory: built-in seed: %v", err))
	}
	return s
}

// LoadSeed reads a YAML seed file.
func LoadSeed(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("reading seed: %w", err)
	}
	s, err := ParseSeed(data)
	if err != nil {
		return Seed{}, fmt.Errorf("seed %s: %w", path, err)
	}
	return s, nil
}

// ParseSeed decodes and validates a YAML seed. Employees without a work
// status start inactive.
func ParseSeed(data []byte) (Seed, error) {
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Seed{}, fmt.Errorf("parsing seed: %w", err)
	}
	if err := s.normalize(); err != nil {
		return Seed{}, err
	}
	return s, nil
}

func (s *Seed) normalize() error {
	ids := make(map[string]bool, len(s.Employees))
	tags := make(map[string]string, len(s.Employees))
	for i := range s.Employees {
		e := &s.Employees[i]
		if e.ID == "" || e.RFIDTag == "" {
			return fmt.Errorf("employee %d: id and rfid_tag are required", i)
		}
		if ids[e.ID] {
			return fmt.Errorf("employee %s: duplicate id", e.ID)
		}
		if owner, ok := tags[e.RFIDTag]; ok {
			return fmt.Errorf("employee %s: tag %s already assigned to %s", e.ID, e.RFIDTag, owner)
		}
		if e.WorkStatus == "" {
			e.WorkStatus = WorkInactive
		}
		if !e.WorkStatus.Valid() {
			return fmt.Errorf("employee %s: unknown work status %q", e.ID, e.WorkStatus)
		}
		ids[e.ID] = true
		tags[e.RFIDTag] = e.ID
	}
	for _, n := range s.Notifications {
		if n.ID == "" {
			return fmt.Errorf("notification for %s: id is required", n.EmployeeID)
		}
		if !ids[n.EmployeeID] {
			return fmt.Errorf("notification %s: unknown employee %q", n.ID, n.EmployeeID)
		}
	}
	return nil
}
