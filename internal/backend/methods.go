package backend

import (
	"context"
	"encoding/json"
	"fmt"

	"fleet-dashboard/internal/models"
)

// ---------- settings ----------

// SettingItem is one remote preference as the backend stores it.
type SettingItem struct {
	Key string `json:"key"`
	Vle string `json:"vle"`
}

func (c *Client) ListSettings(ctx context.Context, ts TokenSource) ([]SettingItem, error) {
	var out struct {
		Items []SettingItem `json:"items"`
	}
	var raw json.RawMessage
	if err := c.Call(ctx, models.RoleUser, ts, "setting.list", map[string]any{}, &raw); err != nil {
		return nil, err
	}
	// the list comes either bare or wrapped in {items: [...]}
	var items []SettingItem
	if err := json.Unmarshal(raw, &items); err == nil {
		return items, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode setting.list: %w", err)
	}
	return out.Items, nil
}

func (c *Client) SetSetting(ctx context.Context, ts TokenSource, key, value string) error {
	return c.Call(ctx, models.RoleUser, ts, "setting.set", map[string]any{"key": key, "vle": value}, nil)
}

// MyProfile returns the profile entries of the logged in client user.
func (c *Client) MyProfile(ctx context.Context, ts TokenSource) ([]SettingItem, error) {
	var items []SettingItem
	if err := c.Call(ctx, models.RoleUser, ts, "user.my_profile", []any{}, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// ---------- translations ----------

type Translation struct {
	Key string `json:"key"`
	Val string `json:"val"`
}

// TranslationEdit is one entry of a bulk translation update.
type TranslationEdit struct {
	Key   string `json:"k"`
	Value string `json:"t"`
}

func (c *Client) ListTranslations(ctx context.Context, role models.UserRole, ts TokenSource, lang string) ([]Translation, error) {
	var out []Translation
	if err := c.Call(ctx, role, ts, "translation.list", map[string]any{"language_code": lang}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListLanguages(ctx context.Context, role models.UserRole, ts TokenSource) ([]string, error) {
	var raw json.RawMessage
	if err := c.Call(ctx, role, ts, "translation.languages_list", map[string]any{}, &raw); err != nil {
		return nil, err
	}
	var langs []string
	if err := json.Unmarshal(raw, &langs); err == nil {
		return langs, nil
	}
	var wrapped struct {
		Result []string `json:"result"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode translation.languages_list: %w", err)
	}
	return wrapped.Result, nil
}

func (c *Client) SetTranslation(ctx context.Context, role models.UserRole, ts TokenSource, lang, key, value string) (bool, error) {
	params := map[string]any{
		"language_code":   lang,
		"translation_key": key,
		"translation":     value,
	}
	return c.callBool(ctx, role, ts, "translation.set", params)
}

func (c *Client) SetTranslationsBulk(ctx context.Context, role models.UserRole, ts TokenSource, lang string, edits []TranslationEdit) (bool, error) {
	params := map[string]any{
		"language_code": lang,
		"translation":   edits,
	}
	return c.callBool(ctx, role, ts, "translation.set_bulk", params)
}

// callBool decodes results that are either a bare boolean or {result: bool}.
func (c *Client) callBool(ctx context.Context, role models.UserRole, ts TokenSource, method string, params any) (bool, error) {
	var raw json.RawMessage
	if err := c.Call(ctx, role, ts, method, params, &raw); err != nil {
		return false, err
	}
	var ok bool
	if err := json.Unmarshal(raw, &ok); err == nil {
		return ok, nil
	}
	var wrapped struct {
		Result bool `json:"result"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return false, fmt.Errorf("decode %s: %w", method, err)
	}
	return wrapped.Result, nil
}

// ---------- manager ----------

func (c *Client) SelectCustomer(ctx context.Context, ts TokenSource, id int64) (bool, error) {
	return c.callBool(ctx, models.RoleManager, ts, "session.select_customer", map[string]any{"id": id})
}

func (c *Client) DeselectCustomer(ctx context.Context, ts TokenSource) (bool, error) {
	return c.callBool(ctx, models.RoleManager, ts, "session.deselect_customer", map[string]any{})
}

func (c *Client) SessionInfo(ctx context.Context, ts TokenSource) (*models.ManagerSession, error) {
	var info models.ManagerSession
	if err := c.Call(ctx, models.RoleManager, ts, "session.info", map[string]any{}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) ListCustomers(ctx context.Context, ts TokenSource) ([]models.Customer, error) {
	var out []models.Customer
	if err := c.Call(ctx, models.RoleManager, ts, "customer.list", map[string]any{}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListUsers(ctx context.Context, ts TokenSource) ([]map[string]any, error) {
	var out []map[string]any
	if err := c.Call(ctx, models.RoleManager, ts, "user.list", map[string]any{}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ModuleOverview(ctx context.Context, ts TokenSource) ([]models.ModuleOverview, error) {
	var out []models.ModuleOverview
	if err := c.Call(ctx, models.RoleManager, ts, "module.overview", map[string]any{}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ---------- client ----------

func (c *Client) ListObjects(ctx context.Context, ts TokenSource) ([]models.Object, error) {
	var out []models.Object
	if err := c.Call(ctx, models.RoleUser, ts, "object.list", map[string]any{}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AddressEntry is one cached reverse geocoding result.
type AddressEntry struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"a"`
}

// AddressCacheGet returns the cached address at lat/lng, or "" on a miss.
func (c *Client) AddressCacheGet(ctx context.Context, ts TokenSource, lat, lng float64) (string, error) {
	var raw json.RawMessage
	if err := c.Call(ctx, models.RoleUser, ts, "address_cache.get", map[string]any{"lat": lat, "lng": lng}, &raw); err != nil {
		return "", err
	}
	var addr string
	if err := json.Unmarshal(raw, &addr); err == nil {
		return addr, nil
	}
	var wrapped struct {
		Result string `json:"result"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		// null or an unexpected shape is a miss
		return "", nil
	}
	return wrapped.Result, nil
}

func (c *Client) AddressCacheAdd(ctx context.Context, ts TokenSource, entries []AddressEntry) error {
	return c.Call(ctx, models.RoleUser, ts, "address_cache.add", map[string]any{"items": entries}, nil)
}
