// ABOUTME: JSON shapes returned by the API
// ABOUTME: Registry and tenant rows are converted here so storage types never leak into responses

package api

import (
	"time"

	"github.com/2389/tower-gateway/internal/records"
	"github.com/2389/tower-gateway/internal/store"
)

type userView struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	ProfilePicture *string   `json:"profile_picture"`
	CreatedAt      time.Time `json:"created_at"`
	IsActive       bool      `json:"is_active"`
	ClientID       string    `json:"client_id"`
}

func newUserView(a *store.Account) *userView {
	if a == nil {
		return nil
	}
	v := &userView{
		ID:        a.ID,
		Username:  a.Username,
		Email:     a.Email,
		CreatedAt: a.CreatedAt,
		IsActive:  a.IsActive,
		ClientID:  a.ClientID,
	}
	if a.ProfilePicture != "" {
		pic := a.ProfilePicture
		v.ProfilePicture = &pic
	}
	return v
}

type clientView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	TenantID  string    `json:"tenant_id"`
	CreatedAt time.Time `json:"created_at"`
	IsActive  bool      `json:"is_active"`
}

func newClientView(c *store.Client) *clientView {
	if c == nil {
		return nil
	}
	return &clientView{
		ID:        c.ID,
		Name:      c.Name,
		Email:     c.Email,
		TenantID:  c.TenantID,
		CreatedAt: c.CreatedAt,
		IsActive:  c.IsActive,
	}
}

type recordView struct {
	ID        int64     `json:"id"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newRecordView(r *records.Record) recordView {
	return recordView{
		ID:        r.ID,
		Key:       r.Key,
		Value:     r.Value,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type settingView struct {
	ID           int64     `json:"id"`
	SettingKey   string    `json:"setting_key"`
	SettingValue string    `json:"setting_value"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type fileView struct {
	ID         int64     `json:"id"`
	Filename   string    `json:"filename"`
	Path       string    `json:"path"`
	Type       string    `json:"type"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploaded_at"`
}

func newFileView(f *records.FileRef) fileView {
	return fileView{
		ID:         f.ID,
		Filename:   f.Filename,
		Path:       f.Path,
		Type:       f.Type,
		Size:       f.Size,
		UploadedAt: f.UploadedAt,
	}
}

type authResponse struct {
	Message     string      `json:"message"`
	AccessToken string      `json:"access_token"`
	User        *userView   `json:"user"`
	Client      *clientView `json:"client"`
}

type meResponse struct {
	User   *userView   `json:"user"`
	Client *clientView `json:"client"`
}
