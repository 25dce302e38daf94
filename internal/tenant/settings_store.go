package tenant

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/flapjack/flapjack/internal/model"
)

func readSettings(tenantRoot string) (model.Settings, error) {
	data, err := os.ReadFile(settingsPath(tenantRoot))
	if os.IsNotExist(err) {
		return model.DefaultSettings(), nil
	}
	if err != nil {
		return model.Settings{}, fmt.Errorf("tenant: read settings.json: %w", err)
	}
	var s model.Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return model.Settings{}, fmt.Errorf("tenant: parse settings.json: %w", err)
	}
	return s, nil
}

func writeSettings(tenantRoot string, s model.Settings) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("tenant: marshal settings: %w", err)
	}
	return os.WriteFile(settingsPath(tenantRoot), data, 0o644)
}

func readJSONFile(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func writeJSONFile(path string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func readRules(tenantRoot string) ([]model.Rule, error) {
	var rules []model.Rule
	if err := readJSONFile(rulesPath(tenantRoot), &rules); err != nil {
		return nil, fmt.Errorf("tenant: read rules.json: %w", err)
	}
	return rules, nil
}

func writeRules(tenantRoot string, rules []model.Rule) error {
	return writeJSONFile(rulesPath(tenantRoot), rules)
}

func readSynonyms(tenantRoot string) ([]model.SynonymSet, error) {
	var sets []model.SynonymSet
	if err := readJSONFile(synonymsPath(tenantRoot), &sets); err != nil {
		return nil, fmt.Errorf("tenant: read synonyms.json: %w", err)
	}
	return sets, nil
}

func writeSynonyms(tenantRoot string, sets []model.SynonymSet) error {
	return writeJSONFile(synonymsPath(tenantRoot), sets)
}
