package main

import (
	"time"

	"github.com/erc7824/ledgergate/pkg/authz"
	"github.com/erc7824/ledgergate/pkg/errcode"
	"github.com/erc7824/ledgergate/pkg/log"
	"github.com/erc7824/ledgergate/pkg/rpc"
)

type commandHandler func(c *rpc.Context, cmd *authz.AuthorizedCommand)

type LoadAccountParams struct {
	// Account is the JSON account file.
	Account string `json:"account" validate:"required"`
}

type UnlockAccountParams struct {
	Address    string `json:"address" validate:"required"`
	Passphrase string `json:"passphrase" validate:"required"`
}

type LockAccountParams struct {
	Address string `json:"address" validate:"required"`
}

// authorized runs the authorization protocol, rejects a command already
// authorized within the message expiry and binds the connection to the
// sender before calling next.
func (r *RPCRouter) authorized(next commandHandler) rpc.Handler {
	return func(c *rpc.Context) {
		method := c.Request.Req.Method

		fields, err := decodeFields(c.Request.Req.Params)
		if err != nil {
			r.Metrics.AuthorizationRejections.WithLabelValues(method, string(errcode.CodeOf(err))).Inc()
			c.Fail(err, "")
			return
		}

		cmd, err := r.Gateway.Protocol.Authorize(c.Context, method, fields)
		if err != nil {
			r.Metrics.AuthorizationRejections.WithLabelValues(method, string(errcode.CodeOf(err))).Inc()
			c.Fail(err, "")
			return
		}

		key := ReplayKey(cmd)
		if !r.MessageCache.AddIfAbsent(key) {
			r.Metrics.AuthorizationRejections.WithLabelValues(method, string(errcode.DuplicateRequest)).Inc()
			c.Fail(ErrDuplicateRequest, "")
			return
		}

		c.UserID = cmd.Sender.String()
		c.Context = log.SetContextLogger(c.Context, log.FromContext(c.Context).WithKV("sender", c.UserID))
		next(c, cmd)

		// Only commands that failed before reaching the ledger may be resent.
		if err := c.Response.Error(); err != nil && errcode.CodeOf(err) != errcode.LedgerRejected {
			r.MessageCache.Remove(key)
		}
	}
}

// HandleLedgerCommand submits the command and waits for the ledger for up to
// the configured submission wait. A command still in flight is reported as
// pending and its outcome arrives as a submission_update notification.
func (r *RPCRouter) HandleLedgerCommand(c *rpc.Context, cmd *authz.AuthorizedCommand) {
	logger := log.FromContext(c.Context)
	method := c.Request.Req.Method

	id, outcomes, err := r.Submitter.Submit(c.Context, cmd)
	if err != nil {
		logger.Warn("failed to submit command", "error", err)
		c.Fail(err, "failed to submit command")
		return
	}

	timer := time.NewTimer(r.Config.SubmissionWait)
	defer timer.Stop()

	select {
	case out := <-outcomes:
		if out.Err != nil {
			c.Fail(out.Err, "")
			return
		}
		c.Succeed(method, rpc.CommandResult{
			SubmissionID: id,
			Status:       string(SubmissionAccepted),
			TxHash:       out.Submission.TxHash,
			Event:        out.Submission.Event,
			Data:         out.Submission.Response(nil).Data,
		})
	case <-timer.C:
		logger.Info("ledger did not answer in time, reporting pending", "submission", id)
		c.Succeed(method, rpc.CommandResult{SubmissionID: id, Status: string(SubmissionPending)})
	case <-c.Context.Done():
		c.Succeed(method, rpc.CommandResult{SubmissionID: id, Status: string(SubmissionPending)})
	}
}

func (r *RPCRouter) localHandlers() map[string]commandHandler {
	return map[string]commandHandler{
		"load_account":   r.HandleLoadAccount,
		"unlock_account": r.HandleUnlockAccount,
		"lock_account":   r.HandleLockAccount,
	}
}

func (r *RPCRouter) HandleLoadAccount(c *rpc.Context, _ *authz.AuthorizedCommand) {
	var params LoadAccountParams
	if err := parseParams(c.Request.Req.Params, &params); err != nil {
		c.Fail(err, "failed to parse parameters")
		return
	}

	id, err := r.Gateway.Keystore.Load([]byte(params.Account))
	if err != nil {
		c.Fail(err, "failed to load account")
		return
	}

	log.FromContext(c.Context).Info("account loaded", "account", id)
	c.Succeed(c.Request.Req.Method, rpc.AccountStatusResponse{Address: id.String(), Locked: true})
}

func (r *RPCRouter) HandleUnlockAccount(c *rpc.Context, _ *authz.AuthorizedCommand) {
	var params UnlockAccountParams
	if err := parseParams(c.Request.Req.Params, &params); err != nil {
		c.Fail(err, "failed to parse parameters")
		return
	}

	if err := r.Gateway.Keystore.Unlock(params.Address, params.Passphrase); err != nil {
		c.Fail(err, "failed to unlock account")
		return
	}
	r.Metrics.UnlockedAccounts.Set(float64(r.Gateway.Keystore.Unlocked()))

	r.accountStatus(c, params.Address)
}

func (r *RPCRouter) HandleLockAccount(c *rpc.Context, _ *authz.AuthorizedCommand) {
	var params LockAccountParams
	if err := parseParams(c.Request.Req.Params, &params); err != nil {
		c.Fail(err, "failed to parse parameters")
		return
	}

	if err := r.Gateway.Keystore.Lock(params.Address); err != nil {
		c.Fail(err, "failed to lock account")
		return
	}
	r.Metrics.UnlockedAccounts.Set(float64(r.Gateway.Keystore.Unlocked()))

	r.accountStatus(c, params.Address)
}
