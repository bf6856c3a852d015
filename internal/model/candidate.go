package model

import (
	"encoding/json"
	"errors"
	"strings"
)

// CandidateType 候选事件类型
type CandidateType string

const (
	CandidateMain CandidateType = "main"
	CandidateSub  CandidateType = "sub"
)

// ParseCandidateType 归一化抽取端给出的类型（兼容 main_event / sub_event 旧写法）
func ParseCandidateType(s string) (CandidateType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "main", "main_event", "mainevent":
		return CandidateMain, true
	case "sub", "sub_event", "subevent":
		return CandidateSub, true
	default:
		return "", false
	}
}

var (
	ErrCandidateNoTitle = errors.New("candidate has no title")
	ErrCandidateType    = errors.New("candidate has unrecognized type")
	ErrCandidateTempKey = errors.New("candidate has no temp key")
)

// Candidate 抽取端产出的待入库事件（仅在单次运行内存在，不落库）
type Candidate struct {
	Title              string `json:"Title"`
	Description        string `json:"Description,omitempty"`
	StartDate          string `json:"Start_Date,omitempty"`
	EndDate            string `json:"End_Date,omitempty"`
	StartTime          string `json:"Start_Time,omitempty"`
	EndTime            string `json:"End_Time,omitempty"`
	Location           string `json:"Location,omitempty"`
	Street             string `json:"Street,omitempty"`
	HouseNumber        string `json:"House_Number,omitempty"`
	ZipCode            string `json:"Zip_Code,omitempty"`
	City               string `json:"City,omitempty"`
	Country            string `json:"Country,omitempty"`
	Room               string `json:"Room,omitempty"`
	Floor              string `json:"Floor,omitempty"`
	Speaker            string `json:"Speaker,omitempty"`
	Organizer          string `json:"Organizer,omitempty"`
	RegistrationNeeded *bool  `json:"Registration_Needed,omitempty"`
	URL                string `json:"URL,omitempty"`
	RegistrationURL    string `json:"Registration_URL,omitempty"`
	MeetingURL         string `json:"Meeting_URL,omitempty"`
	ImageKey           string `json:"Image_Key,omitempty"`
	Type               string `json:"Type"`
	TempKey            string `json:"Temp_Key"`
}

// UnmarshalJSON 兼容抽取端旧字段 Event_Type / Main_Event_Temp_Key；temp key 去除首尾空白
func (c *Candidate) UnmarshalJSON(data []byte) error {
	type plain Candidate
	var aux struct {
		plain
		EventType        string `json:"Event_Type"`
		MainEventTempKey string `json:"Main_Event_Temp_Key"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*c = Candidate(aux.plain)
	if c.Type == "" {
		c.Type = aux.EventType
	}
	if strings.TrimSpace(c.TempKey) == "" {
		c.TempKey = aux.MainEventTempKey
	}
	c.TempKey = strings.TrimSpace(c.TempKey)
	return nil
}

// Kind 返回归一化后的类型，无法识别时 ok=false
func (c *Candidate) Kind() (CandidateType, bool) {
	return ParseCandidateType(c.Type)
}

// Validate 仅做存在性校验：标题、可识别的类型、temp key
func (c *Candidate) Validate() error {
	if strings.TrimSpace(c.Title) == "" {
		return ErrCandidateNoTitle
	}
	if _, ok := c.Kind(); !ok {
		return ErrCandidateType
	}
	if strings.TrimSpace(c.TempKey) == "" {
		return ErrCandidateTempKey
	}
	return nil
}

// Details 转为持久化字段
func (c *Candidate) Details() EventDetails {
	return EventDetails{
		Title:              strings.TrimSpace(c.Title),
		Description:        c.Description,
		StartDate:          c.StartDate,
		EndDate:            c.EndDate,
		StartTime:          c.StartTime,
		EndTime:            c.EndTime,
		Location:           c.Location,
		Street:             c.Street,
		HouseNumber:        c.HouseNumber,
		ZipCode:            c.ZipCode,
		City:               c.City,
		Country:            c.Country,
		Room:               c.Room,
		Floor:              c.Floor,
		Speaker:            c.Speaker,
		Organizer:          c.Organizer,
		RegistrationNeeded: c.RegistrationNeeded,
		URL:                c.URL,
		RegistrationURL:    c.RegistrationURL,
		MeetingURL:         c.MeetingURL,
		ImageKey:           c.ImageKey,
	}
}

// ToMainEvent 构建待插入的主事件
func (c *Candidate) ToMainEvent() *MainEvent {
	return &MainEvent{
		EventDetails: c.Details(),
		Lifecycle:    LifecycleActive,
		SubEventIDs:  []byte("[]"),
		TempKey:      c.TempKey,
	}
}

// ToSubEvent 构建待插入的子事件，parent 为 nil 表示暂未解析到父事件
func (c *Candidate) ToSubEvent(parent *uint64) *SubEvent {
	return &SubEvent{
		EventDetails: c.Details(),
		Lifecycle:    LifecycleActive,
		MainEventID:  parent,
		TempKey:      c.TempKey,
	}
}
