package users

import (
	"maps"
	"time"

	"github.com/BaSui01/dailycrew/types"
)

// User 用户记录
type User struct {
	ID               string                                            `gorm:"primaryKey;size:128" json:"id"`
	DisplayName      string                                            `gorm:"size:200" json:"display_name"`
	Email            string                                            `gorm:"size:320" json:"email"`
	Timezone         string                                            `gorm:"size:64;not null;default:UTC" json:"timezone"`
	Preferences      map[string]any                                    `gorm:"serializer:json;type:text" json:"preferences"`
	OnboardingStatus types.OnboardingStatus                            `gorm:"size:32;not null;index" json:"onboarding_status"`
	OnboardingStep   types.OnboardingStep                              `gorm:"size:32;not null" json:"onboarding_step"`
	RepromptCount    int                                               `gorm:"not null;default:0" json:"reprompt_count"`
	Integrations     map[types.IntegrationKind]types.IntegrationStatus `gorm:"serializer:json;type:text" json:"integrations"`
	LastActiveAt     *time.Time                                        `json:"last_active_at,omitempty"`
	CreatedAt        time.Time                                         `json:"created_at"`
	UpdatedAt        time.Time                                         `json:"updated_at"`
}

// TableName implements gorm's tabler.
func (User) TableName() string {
	return "users"
}

// NewUser 为首次接触的用户构造初始记录
func NewUser(id string, profile types.Profile) *User {
	u := &User{
		ID:               id,
		DisplayName:      profile.DisplayName,
		Email:            profile.Email,
		Timezone:         profile.Timezone,
		Preferences:      map[string]any{},
		OnboardingStatus: types.OnboardingNotStarted,
		OnboardingStep:   types.StepWelcome,
		Integrations:     make(map[types.IntegrationKind]types.IntegrationStatus, 3),
	}
	if u.Timezone == "" {
		u.Timezone = "UTC"
	}
	for _, kind := range types.AllIntegrations() {
		u.Integrations[kind] = types.IntegrationNotConfigured
	}
	return u
}

// OnboardingComplete 引导是否已完成
func (u *User) OnboardingComplete() bool {
	return u.OnboardingStatus == types.OnboardingComplete
}

// IntegrationStatus 返回某个集成的配置状态，未记录时视为未配置
func (u *User) IntegrationStatus(kind types.IntegrationKind) types.IntegrationStatus {
	if s, ok := u.Integrations[kind]; ok {
		return s
	}
	return types.IntegrationNotConfigured
}

// SetIntegration 更新集成状态
func (u *User) SetIntegration(kind types.IntegrationKind, status types.IntegrationStatus) {
	if u.Integrations == nil {
		u.Integrations = make(map[types.IntegrationKind]types.IntegrationStatus, 3)
	}
	u.Integrations[kind] = status
}

// Location 返回用户时区，无法解析时回退到 fallback（再不行则 UTC）
func (u *User) Location(fallback *time.Location) *time.Location {
	if u.Timezone != "" {
		if loc, err := time.LoadLocation(u.Timezone); err == nil {
			return loc
		}
	}
	if fallback != nil {
		return fallback
	}
	return time.UTC
}

// MergePreferences 合并偏好，值为 nil 的键会被删除
func (u *User) MergePreferences(prefs map[string]any) {
	if u.Preferences == nil {
		u.Preferences = make(map[string]any, len(prefs))
	}
	for k, v := range prefs {
		if v == nil {
			delete(u.Preferences, k)
			continue
		}
		u.Preferences[k] = v
	}
}

// Clone 深拷贝
func (u *User) Clone() *User {
	cp := *u
	cp.Preferences = maps.Clone(u.Preferences)
	cp.Integrations = maps.Clone(u.Integrations)
	if u.LastActiveAt != nil {
		t := *u.LastActiveAt
		cp.LastActiveAt = &t
	}
	return &cp
}
