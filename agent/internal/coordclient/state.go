package coordclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// agentState is persisted to disk after an agent's first run so its
// identity survives a restart — the coordinator's REST surface has no
// registration handshake that hands back an identity of its own, every
// call is keyed by whatever agentId the caller presents, so that value
// must be stable.
type agentState struct {
	AgentID string `json:"agent_id"`
}

func stateFilePath(stateDir string) string {
	return filepath.Join(stateDir, "agent-state.json")
}

// LoadOrCreateAgentID returns the persisted agent ID, minting and saving a
// new one on first run.
func LoadOrCreateAgentID(stateDir string) (string, error) {
	return loadOrCreateAgentID(stateDir)
}

// loadOrCreateAgentID returns the persisted agent ID, minting and saving a
// new one on first run.
func loadOrCreateAgentID(stateDir string) (string, error) {
	state, err := loadState(stateDir)
	if err != nil {
		return "", err
	}
	if state.AgentID != "" {
		return state.AgentID, nil
	}

	state.AgentID = uuid.NewString()
	if err := saveState(stateDir, state); err != nil {
		return "", err
	}
	return state.AgentID, nil
}

func loadState(stateDir string) (agentState, error) {
	data, err := os.ReadFile(stateFilePath(stateDir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return agentState{}, nil
		}
		return agentState{}, fmt.Errorf("coordclient: reading state file: %w", err)
	}
	var s agentState
	if err := json.Unmarshal(data, &s); err != nil {
		return agentState{}, fmt.Errorf("coordclient: corrupted state file: %w", err)
	}
	return s, nil
}

// saveState writes the agent state atomically via temp file + rename, so a
// crash mid-write never leaves a corrupted state file behind.
func saveState(stateDir string, s agentState) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("coordclient: marshaling state: %w", err)
	}
	if err := os.MkdirAll(stateDir, 0750); err != nil {
		return fmt.Errorf("coordclient: creating state dir: %w", err)
	}

	tmp, err := os.CreateTemp(stateDir, "agent-state.*.tmp")
	if err != nil {
		return fmt.Errorf("coordclient: creating temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	ok := false
	defer func() {
		if !ok {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("coordclient: writing state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("coordclient: closing temp state file: %w", err)
	}
	if err := os.Rename(tmpPath, stateFilePath(stateDir)); err != nil {
		return fmt.Errorf("coordclient: renaming state file: %w", err)
	}
	ok = true
	return nil
}
