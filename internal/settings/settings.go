// Package settings holds the user's model and feature settings and persists
// them as a flat set of named string values.
package settings

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"aider-web/internal/protocol"
)

// Persisted keys.
const (
	KeyModel            = "aider_model"
	KeyAPIKey           = "aider_api_key"
	KeyEditFormat       = "aider_edit_format"
	KeyWeakModel        = "aider_weak_model"
	KeyReminder         = "aider_reminder"
	KeyUseRepoMap       = "aider_use_repo_map"
	KeySendUndoReply    = "aider_send_undo_reply"
	KeyLazy             = "aider_lazy"
	KeyExamplesAsSysMsg = "aider_examples_as_sys_msg"
	KeyUseSystemPrompt  = "aider_use_system_prompt"
	KeyUseTemperature   = "aider_use_temperature"
	KeyStreaming        = "aider_streaming"
)

// Settings is the user-editable configuration of the coding assistant.
type Settings struct {
	Model            string `yaml:"model"`
	APIKey           string `yaml:"api_key,omitempty"`
	EditFormat       string `yaml:"edit_format"`
	WeakModel        string `yaml:"weak_model,omitempty"`
	Reminder         string `yaml:"reminder"`
	UseRepoMap       bool   `yaml:"use_repo_map"`
	SendUndoReply    bool   `yaml:"send_undo_reply"`
	Lazy             bool   `yaml:"lazy"`
	ExamplesAsSysMsg bool   `yaml:"examples_as_sys_msg"`
	UseSystemPrompt  bool   `yaml:"use_system_prompt"`
	UseTemperature   bool   `yaml:"use_temperature"`
	Streaming        bool   `yaml:"streaming"`
}

// Default returns the settings used for every key absent from storage.
func Default() Settings {
	return Settings{
		Model:           "gpt-4o",
		EditFormat:      "whole",
		Reminder:        "user",
		UseSystemPrompt: true,
		UseTemperature:  true,
		Streaming:       true,
	}
}

// ModelConfig returns the immutable snapshot sent at session start.
func (s Settings) ModelConfig() protocol.ModelConfig {
	return protocol.ModelConfig{
		EditFormat:       s.EditFormat,
		WeakModelName:    s.WeakModel,
		UseRepoMap:       s.UseRepoMap,
		SendUndoReply:    s.SendUndoReply,
		Lazy:             s.Lazy,
		Reminder:         s.Reminder,
		ExamplesAsSysMsg: s.ExamplesAsSysMsg,
		UseSystemPrompt:  s.UseSystemPrompt,
		UseTemperature:   s.UseTemperature,
		Streaming:        s.Streaming,
	}
}

// fromValues overlays stored values on the defaults.
func fromValues(values map[string]string) Settings {
	s := Default()
	str := func(key string, dst *string) {
		if v, ok := values[key]; ok && v != "" {
			*dst = v
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := values[key]; ok {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	str(KeyModel, &s.Model)
	str(KeyAPIKey, &s.APIKey)
	str(KeyEditFormat, &s.EditFormat)
	str(KeyWeakModel, &s.WeakModel)
	str(KeyReminder, &s.Reminder)
	flag(KeyUseRepoMap, &s.UseRepoMap)
	flag(KeySendUndoReply, &s.SendUndoReply)
	flag(KeyLazy, &s.Lazy)
	flag(KeyExamplesAsSysMsg, &s.ExamplesAsSysMsg)
	flag(KeyUseSystemPrompt, &s.UseSystemPrompt)
	flag(KeyUseTemperature, &s.UseTemperature)
	flag(KeyStreaming, &s.Streaming)
	return s
}

// values flattens settings into storable strings. The API key is only
// included when set so that saving never erases a stored key.
func (s Settings) values() map[string]string {
	v := map[string]string{
		KeyModel:            s.Model,
		KeyEditFormat:       s.EditFormat,
		KeyWeakModel:        s.WeakModel,
		KeyReminder:         s.Reminder,
		KeyUseRepoMap:       strconv.FormatBool(s.UseRepoMap),
		KeySendUndoReply:    strconv.FormatBool(s.SendUndoReply),
		KeyLazy:             strconv.FormatBool(s.Lazy),
		KeyExamplesAsSysMsg: strconv.FormatBool(s.ExamplesAsSysMsg),
		KeyUseSystemPrompt:  strconv.FormatBool(s.UseSystemPrompt),
		KeyUseTemperature:   strconv.FormatBool(s.UseTemperature),
		KeyStreaming:        strconv.FormatBool(s.Streaming),
	}
	if strings.TrimSpace(s.APIKey) != "" {
		v[KeyAPIKey] = strings.TrimSpace(s.APIKey)
	}
	return v
}

// Set assigns a single setting by key. Keys may be given with or without the
// "aider_" prefix.
func (s *Settings) Set(key, value string) error {
	if !strings.HasPrefix(key, "aider_") {
		key = "aider_" + key
	}
	values := s.values()
	if _, known := values[key]; !known && key != KeyAPIKey {
		return fmt.Errorf("unknown setting: %s", key)
	}
	if _, isBool := boolKeys[key]; isBool {
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Errorf("setting %s expects true or false, got %q", key, value)
		}
	}
	values[key] = value
	*s = fromValues(values)
	return nil
}

var boolKeys = map[string]struct{}{
	KeyUseRepoMap:       {},
	KeySendUndoReply:    {},
	KeyLazy:             {},
	KeyExamplesAsSysMsg: {},
	KeyUseSystemPrompt:  {},
	KeyUseTemperature:   {},
	KeyStreaming:        {},
}

// Keys lists every persisted key in sorted order.
func Keys() []string {
	keys := make([]string, 0, 12)
	for k := range Default().values() {
		keys = append(keys, k)
	}
	keys = append(keys, KeyAPIKey)
	sort.Strings(keys)
	return keys
}
