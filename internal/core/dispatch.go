package core

import (
	"github.com/bennycortese/graphite-control-plane/internal/protocol"
)

// Sender delivers requests to the host. Send must not block.
type Sender interface {
	Send(protocol.Outbound)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(protocol.Outbound)

func (f SenderFunc) Send(m protocol.Outbound) { f(m) }

// Dispatcher emits exactly one outbound message per user intent.
type Dispatcher struct {
	out Sender
}

// NewDispatcher returns a dispatcher writing to out.
func NewDispatcher(out Sender) *Dispatcher {
	return &Dispatcher{out: out}
}

func (d *Dispatcher) Ready()        { d.out.Send(protocol.Ready{}) }
func (d *Dispatcher) Refresh()      { d.out.Send(protocol.Refresh{}) }
func (d *Dispatcher) Sync()         { d.out.Send(protocol.Sync{}) }
func (d *Dispatcher) SubmitStack()  { d.out.Send(protocol.SubmitStack{}) }
func (d *Dispatcher) Restack()      { d.out.Send(protocol.Restack{}) }
func (d *Dispatcher) CreateBranch() { d.out.Send(protocol.CreateBranch{}) }

func (d *Dispatcher) Checkout(branch string) {
	d.out.Send(protocol.Checkout{Branch: branch})
}

func (d *Dispatcher) GetCommits(branch, parent string) {
	d.out.Send(protocol.GetCommits{Branch: branch, Parent: parent})
}

// ReorderBranches sends order, which must be trunk first.
func (d *Dispatcher) ReorderBranches(order []string) {
	d.out.Send(protocol.ReorderBranches{Order: order})
}

// ApplyCommitChanges submits the pending plan of branch. Nothing is sent when
// the plan cannot be submitted; the error is returned for inline display.
func (d *Dispatcher) ApplyCommitChanges(plans *Plans, branch, parent string) error {
	actions, err := plans.BuildSubmission(branch)
	if err != nil {
		return err
	}
	d.out.Send(protocol.ReorderCommits{Branch: branch, Parent: parent, CommitActions: actions})
	return nil
}
