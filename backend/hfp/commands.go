package hfp

import (
	"context"
	"strings"

	"github.com/b0bbywan/go-hfpd/backend/core"
	"github.com/b0bbywan/go-hfpd/logger"
)

type pendingCommand struct {
	cmd    Command
	result chan error
	timer  *core.Timer
}

// Dial places an outgoing call to number.
func (ag *AudioGateway) Dial(ctx context.Context, number string) error {
	number = strings.ToUpper(strings.TrimSpace(number))
	if number == "" {
		return core.Failed("Empty phone number specified")
	}
	for _, c := range number {
		if !strings.ContainsRune("0123456789*#+ABCD", c) {
			return core.Failed("Invalid character in phone number")
		}
	}
	return ag.command(ctx, Command{Kind: CmdDial, Arg: number})
}

// Redial calls the last dialed number.
func (ag *AudioGateway) Redial(ctx context.Context) error {
	return ag.command(ctx, Command{Kind: CmdRedial})
}

// HangUp ends the active call or rejects an incoming one.
func (ag *AudioGateway) HangUp(ctx context.Context) error {
	return ag.command(ctx, Command{Kind: CmdHangUp})
}

// SendDtmf sends a single tone during a call.
func (ag *AudioGateway) SendDtmf(ctx context.Context, digit string) error {
	digit = strings.ToUpper(digit)
	if len(digit) != 1 || !strings.Contains("0123456789*#ABCD", digit) {
		return core.Failed("Invalid DTMF digit")
	}
	return ag.command(ctx, Command{Kind: CmdDtmf, Arg: digit})
}

// Answer picks up an incoming call.
func (ag *AudioGateway) Answer(ctx context.Context) error {
	return ag.command(ctx, Command{Kind: CmdAnswer})
}

// CallDropHeldUdub releases held calls or sets user busy on a waiting call.
func (ag *AudioGateway) CallDropHeldUdub(ctx context.Context) error {
	return ag.command(ctx, Command{Kind: CmdDropHeldUdub})
}

// CallSwapDropActive releases active calls and accepts the other one.
func (ag *AudioGateway) CallSwapDropActive(ctx context.Context) error {
	return ag.command(ctx, Command{Kind: CmdSwapDropActive})
}

// CallSwapHoldActive holds active calls and accepts the other one.
func (ag *AudioGateway) CallSwapHoldActive(ctx context.Context) error {
	return ag.command(ctx, Command{Kind: CmdSwapHoldActive})
}

// CallLink adds the held call to the conversation.
func (ag *AudioGateway) CallLink(ctx context.Context) error {
	return ag.command(ctx, Command{Kind: CmdLink})
}

// CallTransfer connects the two calls and leaves the conversation.
func (ag *AudioGateway) CallTransfer(ctx context.Context) error {
	return ag.command(ctx, Command{Kind: CmdTransfer})
}

// command queues cmd inside the loop and waits for its outcome outside it.
func (ag *AudioGateway) command(ctx context.Context, cmd Command) error {
	var result <-chan error
	err := ag.hf.loop.Call(ctx, func() error {
		var err error
		result, err = ag.send(cmd)
		return err
	})
	if err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (ag *AudioGateway) send(cmd Command) (<-chan error, error) {
	switch {
	case ag.state == StateDestroyed:
		return nil, ErrNoSuchDevice
	case ag.state != StateConnected:
		return nil, ErrNotConnected
	case cmd.needsThreeWay() && !ag.features["ThreeWayCalling"]:
		return nil, ErrNotSupported
	}

	ag.nextCmd++
	id := ag.nextCmd
	pc := &pendingCommand{cmd: cmd, result: make(chan error, 1)}
	pc.timer = ag.hf.loop.AfterFunc(ag.hf.cfg.CommandTimeout, func() {
		logger.Warn("[ag] %s command %s timed out", ag.addr, cmd)
		ag.resolve(id, ErrTimeout)
	})
	ag.pending[id] = pc

	logger.Debug("[ag] %s sending %s", ag.addr, cmd)
	loop := ag.hf.loop
	ag.hf.radio.SendCommand(ag.addr, cmd, func(err error) {
		loop.Post(func() { ag.resolve(id, err) })
	})
	return pc.result, nil
}

func (ag *AudioGateway) resolve(id uint64, err error) {
	pc, ok := ag.pending[id]
	if !ok {
		return
	}
	delete(ag.pending, id)
	pc.timer.Stop()
	pc.result <- err
}

func (ag *AudioGateway) failPending(err error) {
	for id := range ag.pending {
		ag.resolve(id, err)
	}
}
