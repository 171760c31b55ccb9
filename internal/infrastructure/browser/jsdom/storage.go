//go:build js && wasm

package jsdom

import (
	"context"
	"fmt"
	"syscall/js"

	"context-injector/internal/application/port/output"
	"context-injector/internal/domain/entity"
	"context-injector/internal/infrastructure/config"
)

var _ output.SettingsStore = (*ChromeStore)(nil)

const DefaultStorageKey = "contextInjectorSettings"

// ChromeStore reads settings from chrome.storage.local, where the extension
// popup keeps them as a JSON string under one key.
type ChromeStore struct {
	key      string
	defaults entity.Settings
	logger   output.LoggerPort
}

func NewChromeStore(key string, defaults entity.Settings, logger output.LoggerPort) *ChromeStore {
	if key == "" {
		key = DefaultStorageKey
	}
	return &ChromeStore{key: key, defaults: defaults, logger: logger}
}

func storageArea() js.Value {
	chrome := js.Global().Get("chrome")
	if nullish(chrome) || nullish(chrome.Get("storage")) {
		return js.Undefined()
	}
	return chrome.Get("storage").Get("local")
}

func (s *ChromeStore) Load(ctx context.Context) (entity.Settings, error) {
	area := storageArea()
	if area.IsUndefined() {
		return s.defaults.Normalize(), nil
	}

	type result struct {
		raw js.Value
		err error
	}
	done := make(chan result, 1)

	onOK := js.FuncOf(func(this js.Value, args []js.Value) any {
		done <- result{raw: args[0].Get(s.key)}
		return nil
	})
	onErr := js.FuncOf(func(this js.Value, args []js.Value) any {
		done <- result{err: fmt.Errorf("chrome.storage.get: %s", args[0].Call("toString").String())}
		return nil
	})
	defer onOK.Release()
	defer onErr.Release()

	area.Call("get", s.key).Call("then", onOK, onErr)

	select {
	case <-ctx.Done():
		return entity.Settings{}, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return entity.Settings{}, r.err
		}
		return s.decode(r.raw)
	}
}

func (s *ChromeStore) decode(raw js.Value) (entity.Settings, error) {
	if nullish(raw) {
		return s.defaults.Normalize(), nil
	}
	text := raw.String()
	if raw.Type() == js.TypeObject {
		text = js.Global().Get("JSON").Call("stringify", raw).String()
	}
	settings, err := config.DecodeSettings([]byte(text), s.defaults)
	if err != nil {
		return entity.Settings{}, fmt.Errorf("parse stored settings: %w", err)
	}
	return settings, nil
}

// Watch relays chrome.storage.onChanged for the settings key. Only the latest
// pending value is kept if the consumer falls behind.
func (s *ChromeStore) Watch(ctx context.Context) <-chan entity.Settings {
	out := make(chan entity.Settings, 1)

	chrome := js.Global().Get("chrome")
	if nullish(chrome) || nullish(chrome.Get("storage")) {
		go func() {
			<-ctx.Done()
			close(out)
		}()
		return out
	}
	onChanged := chrome.Get("storage").Get("onChanged")

	listener := js.FuncOf(func(this js.Value, args []js.Value) any {
		changes, area := args[0], args[1].String()
		if area != "local" {
			return nil
		}
		change := changes.Get(s.key)
		if nullish(change) {
			return nil
		}
		next, err := s.decode(change.Get("newValue"))
		if err != nil {
			s.logger.Warn("ignoring unreadable stored settings", "error", err)
			return nil
		}
		select {
		case out <- next:
		default:
			select {
			case <-out:
			default:
			}
			out <- next
		}
		return nil
	})
	onChanged.Call("addListener", listener)

	go func() {
		<-ctx.Done()
		onChanged.Call("removeListener", listener)
		listener.Release()
		close(out)
	}()

	return out
}
