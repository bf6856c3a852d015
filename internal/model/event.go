package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Lifecycle 事件生命周期状态（archived 之外预留扩展，如 cancelled）
type Lifecycle string

const (
	LifecycleActive   Lifecycle = "active"
	LifecycleArchived Lifecycle = "archived"
)

// EventDetails 主/子事件共用字段（时间窗口、描述、地点、报名信息、分类）
type EventDetails struct {
	Title              string `gorm:"column:title;type:varchar(512);not null;index" json:"title"`
	Description        string `gorm:"column:description;type:text" json:"description,omitempty"`
	StartDate          string `gorm:"column:start_date;type:varchar(64)" json:"start_date,omitempty"` // 原始日期字符串，解析见 service.ParseEventDate
	EndDate            string `gorm:"column:end_date;type:varchar(64)" json:"end_date,omitempty"`
	StartTime          string `gorm:"column:start_time;type:varchar(64)" json:"start_time,omitempty"`
	EndTime            string `gorm:"column:end_time;type:varchar(64)" json:"end_time,omitempty"`
	Location           string `gorm:"column:location;type:varchar(512)" json:"location,omitempty"` // 场地名称
	Street             string `gorm:"column:street;type:varchar(256)" json:"street,omitempty"`
	HouseNumber        string `gorm:"column:house_number;type:varchar(32)" json:"house_number,omitempty"`
	ZipCode            string `gorm:"column:zip_code;type:varchar(32)" json:"zip_code,omitempty"`
	City               string `gorm:"column:city;type:varchar(128);index" json:"city,omitempty"`
	Country            string `gorm:"column:country;type:varchar(128)" json:"country,omitempty"`
	Room               string `gorm:"column:room;type:varchar(128)" json:"room,omitempty"`
	Floor              string `gorm:"column:floor;type:varchar(64)" json:"floor,omitempty"`
	Speaker            string `gorm:"column:speaker;type:varchar(256)" json:"speaker,omitempty"`
	Organizer          string `gorm:"column:organizer;type:varchar(256)" json:"organizer,omitempty"`
	RegistrationNeeded *bool  `gorm:"column:registration_needed" json:"registration_needed,omitempty"`
	URL                string `gorm:"column:url;type:varchar(1024)" json:"url,omitempty"`
	RegistrationURL    string `gorm:"column:registration_url;type:varchar(1024)" json:"registration_url,omitempty"`
	MeetingURL         string `gorm:"column:meeting_url;type:varchar(1024)" json:"meeting_url,omitempty"`
	ImageKey           string `gorm:"column:image_key;type:varchar(64)" json:"image_key,omitempty"` // 分类键
}

// RequiresRegistration 显式声明需要报名，或带有报名链接（隐式）
func (d *EventDetails) RequiresRegistration() bool {
	if d.RegistrationNeeded != nil && *d.RegistrationNeeded {
		return true
	}
	return d.RegistrationURL != ""
}

// MainEvent 主事件表
type MainEvent struct {
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	EventDetails
	Lifecycle   Lifecycle      `gorm:"column:lifecycle;type:varchar(16);not null;default:active;index" json:"lifecycle"`
	SubEventIDs datatypes.JSON `gorm:"column:sub_event_ids;type:jsonb" json:"sub_event_ids"` // 子事件 id 有序列表
	TempKey     string         `gorm:"column:temp_key;type:varchar(128);index" json:"temp_key,omitempty"`
	CreatedAt   time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (MainEvent) TableName() string { return "main_events" }

// IsArchived 是否已归档
func (m *MainEvent) IsArchived() bool { return m.Lifecycle == LifecycleArchived }

// ChildIDs 解析 sub_event_ids，脏数据按空列表处理
func (m *MainEvent) ChildIDs() []uint64 {
	if len(m.SubEventIDs) == 0 {
		return nil
	}
	var ids []uint64
	if err := json.Unmarshal(m.SubEventIDs, &ids); err != nil {
		return nil
	}
	return ids
}

// AppendChildIDs 合并新子事件 id（保持顺序、去重，不覆盖已有值），返回实际新增数量
func (m *MainEvent) AppendChildIDs(ids ...uint64) int {
	existing := m.ChildIDs()
	seen := make(map[uint64]struct{}, len(existing))
	for _, id := range existing {
		seen[id] = struct{}{}
	}
	added := 0
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		existing = append(existing, id)
		added++
	}
	raw, _ := json.Marshal(existing)
	m.SubEventIDs = datatypes.JSON(raw)
	return added
}

// SubEvent 子事件表，main_event_id 可空（孤儿由 OrphanReconciler 清理）
type SubEvent struct {
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	EventDetails
	Lifecycle   Lifecycle `gorm:"column:lifecycle;type:varchar(16);not null;default:active;index" json:"lifecycle"`
	MainEventID *uint64   `gorm:"column:main_event_id;index" json:"main_event_id"`
	TempKey     string    `gorm:"column:temp_key;type:varchar(128)" json:"temp_key,omitempty"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (SubEvent) TableName() string { return "sub_events" }

// IsArchived 是否已归档
func (s *SubEvent) IsArchived() bool { return s.Lifecycle == LifecycleArchived }
