package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/erc7824/ledgergate/pkg/authz"
	"github.com/erc7824/ledgergate/pkg/errcode"
	"github.com/erc7824/ledgergate/pkg/rpc"
)

type SubmissionStatus string

const (
	SubmissionPending  SubmissionStatus = "pending"
	SubmissionAccepted SubmissionStatus = "accepted"
	SubmissionRejected SubmissionStatus = "rejected"
)

var ErrSubmissionNotFound = errcode.New(errcode.MalformedRequest, "submission not found")

// Submission is one authorized command handed to the ledger.
type Submission struct {
	ID     string `gorm:"column:id;primaryKey"`
	Method string `gorm:"column:method;not null"`
	Call   string `gorm:"column:call;not null"`
	Schema string `gorm:"column:schema_name;not null"`
	Sender string `gorm:"column:sender;not null;index"`
	// Params is the 0x hex of the encoded parameter set.
	Params     string           `gorm:"column:params;not null"`
	Signatures datatypes.JSON   `gorm:"column:signatures"`
	Status     SubmissionStatus `gorm:"column:status;not null;index"`
	TxHash     string           `gorm:"column:tx_hash;not null;default:''"`
	Event      string           `gorm:"column:event;not null;default:''"`
	EventData  datatypes.JSON   `gorm:"column:event_data"`
	Error      string           `gorm:"column:error;not null;default:''"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (Submission) TableName() string {
	return "ledger_submissions"
}

// Response renders the submission for RPC clients. decoded may be nil.
func (s Submission) Response(decoded map[string]string) rpc.Submission {
	res := rpc.Submission{
		ID:        s.ID,
		Method:    s.Method,
		Call:      s.Call,
		Schema:    s.Schema,
		Sender:    s.Sender,
		Params:    s.Params,
		Decoded:   decoded,
		Status:    string(s.Status),
		TxHash:    s.TxHash,
		Event:     s.Event,
		Error:     s.Error,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
	if len(s.EventData) > 0 {
		res.Data = json.RawMessage(s.EventData)
	}
	return res
}

// SignaturesOf encodes the verified party signatures for storage.
func SignaturesOf(sigs []authz.PartySignature) (datatypes.JSON, error) {
	data, err := json.Marshal(sigs)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(data), nil
}

func CreateSubmission(tx *gorm.DB, s *Submission) error {
	if s.Status == "" {
		s.Status = SubmissionPending
	}
	return tx.Create(s).Error
}

// CompleteSubmission records the ledger's verdict on a pending submission.
func CompleteSubmission(tx *gorm.DB, id string, status SubmissionStatus, txHash, event string, data json.RawMessage, errMsg string) error {
	updates := map[string]any{
		"status":  status,
		"tx_hash": txHash,
		"event":   event,
		"error":   errMsg,
	}
	if len(data) > 0 {
		updates["event_data"] = datatypes.JSON(data)
	}

	res := tx.Model(&Submission{}).
		Where("id = ? AND status = ?", id, SubmissionPending).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s is not pending", ErrSubmissionNotFound, id)
	}
	return nil
}

func GetSubmission(tx *gorm.DB, id string) (*Submission, error) {
	var s Submission
	if err := tx.Where("id = ?", id).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSubmissionNotFound, id)
		}
		return nil, err
	}
	return &s, nil
}

// ListSubmissions returns the sender's submissions, newest first. An empty
// status matches every status.
func ListSubmissions(tx *gorm.DB, sender string, status SubmissionStatus, options *ListOptions) ([]Submission, error) {
	query := applyListOptions(tx, "created_at", SortTypeDescending, options).Where("sender = ?", sender)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var subs []Submission
	if err := query.Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

// RejectStaleSubmissions rejects submissions still pending that were created
// before cutoff. No ledger call can be in flight for them once cutoff is at
// least one submission timeout in the past.
func RejectStaleSubmissions(tx *gorm.DB, cutoff time.Time, errMsg string) ([]Submission, error) {
	var stale []Submission
	err := tx.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("status = ? AND created_at < ?", SubmissionPending, cutoff).
			Order("created_at ASC").
			Find(&stale).Error; err != nil {
			return err
		}
		for i := range stale {
			if err := CompleteSubmission(tx, stale[i].ID, SubmissionRejected, "", "", nil, errMsg); err != nil {
				return err
			}
			stale[i].Status = SubmissionRejected
			stale[i].Error = errMsg
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stale, nil
}
