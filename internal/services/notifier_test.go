package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	"github.com/googleapis/gax-go/v2"
)

type fakeExecutions struct {
	req *executionspb.CreateExecutionRequest
	err error
}

func (f *fakeExecutions) CreateExecution(_ context.Context, req *executionspb.CreateExecutionRequest, _ ...gax.CallOption) (*executionspb.Execution, error) {
	f.req = req
	return &executionspb.Execution{}, f.err
}

func TestWorkflowNotifier(t *testing.T) {
	fake := &fakeExecutions{}
	n := &WorkflowNotifier{client: fake, parent: "projects/p/locations/us-central1/workflows/tender-review"}

	if err := n.Notify(context.Background(), "batch-1", []string{"t1", "t2"}); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if fake.req.Parent != "projects/p/locations/us-central1/workflows/tender-review" {
		t.Fatalf("parent = %q", fake.req.Parent)
	}
	var arg struct {
		BatchID   string   `json:"batchId"`
		TenderIDs []string `json:"tenderIds"`
	}
	if err := json.Unmarshal([]byte(fake.req.Execution.Argument), &arg); err != nil {
		t.Fatalf("argument is not JSON: %v", err)
	}
	if arg.BatchID != "batch-1" || len(arg.TenderIDs) != 2 {
		t.Fatalf("argument = %+v", arg)
	}

	fake.err = errors.New("denied")
	if err := n.Notify(context.Background(), "batch-2", nil); err == nil {
		t.Fatalf("expected error from failed execution")
	}
}
