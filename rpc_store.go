package main

import (
	"encoding/json"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/erc7824/ledgergate/pkg/rpc"
	"github.com/erc7824/ledgergate/pkg/sign"
)

// RPCRecord is one request/response pair.
type RPCRecord struct {
	ID        uint           `gorm:"primaryKey"`
	Sender    string         `gorm:"column:sender;type:varchar(64);not null;default:''"`
	ReqID     uint64         `gorm:"column:req_id;not null"`
	Method    string         `gorm:"column:method;type:varchar(255);not null"`
	Params    []byte         `gorm:"column:params;type:text;not null"`
	Timestamp uint64         `gorm:"column:timestamp;not null"`
	ReqSig    pq.StringArray `gorm:"type:text[];column:req_sig;"`
	Response  []byte         `gorm:"column:response;type:text;not null"`
	ResSig    pq.StringArray `gorm:"type:text[];column:res_sig;"`
}

func (RPCRecord) TableName() string {
	return "rpc_records"
}

type RPCStore struct {
	db *gorm.DB
}

func NewRPCStore(db *gorm.DB) *RPCStore {
	return &RPCStore{db: db}
}

// StoreMessage records a handled request. sender is empty for connections
// that are not bound to an account.
func (s *RPCStore) StoreMessage(sender string, req rpc.Payload, reqSigs []sign.Signature, res rpc.Payload, resSigs []sign.Signature) error {
	paramsBytes, err := json.Marshal(req.Params)
	if err != nil {
		return err
	}
	resBytes, err := json.Marshal(res)
	if err != nil {
		return err
	}

	return s.db.Create(&RPCRecord{
		Sender:    sender,
		ReqID:     req.RequestID,
		Method:    req.Method,
		Params:    paramsBytes,
		Timestamp: req.Timestamp,
		ReqSig:    signaturesToStrings(reqSigs),
		Response:  resBytes,
		ResSig:    signaturesToStrings(resSigs),
	}).Error
}

// GetRPCHistory returns the sender's records, newest first.
func (s *RPCStore) GetRPCHistory(sender string, options *ListOptions) ([]RPCRecord, error) {
	var records []RPCRecord
	err := applyListOptions(s.db, "timestamp", SortTypeDescending, options).
		Where("sender = ?", sender).
		Find(&records).Error
	return records, err
}

func signaturesToStrings(sigs []sign.Signature) pq.StringArray {
	out := make(pq.StringArray, len(sigs))
	for i, sig := range sigs {
		out[i] = sig.String()
	}
	return out
}
