package workerloop

import (
	"context"
	"errors"
	"testing"
)

type mathService struct{}

func (mathService) Add(a, b float64) float64 { return a + b }

func (mathService) Divide(ctx context.Context, a, b float64) (float64, error) {
	if b == 0 {
		return 0, errors.New("division by zero")
	}
	return a / b, nil
}

func (mathService) NoArgsNoReturn() {}

func TestInvokePlainMethod(t *testing.T) {
	result, err := invoke(context.Background(), "Math", mathService{}, "Add", []any{float64(2), float64(3)})
	if err != nil {
		t.Fatal(err)
	}
	if result != float64(5) {
		t.Errorf("got %v, want %v", result, 5)
	}
}

func TestInvokeMethodWithContextFirstParam(t *testing.T) {
	result, err := invoke(context.Background(), "Math", mathService{}, "Divide", []any{float64(10), float64(2)})
	if err != nil {
		t.Fatal(err)
	}
	if result != float64(5) {
		t.Errorf("got %v, want %v", result, 5)
	}
}

func TestInvokeMethodReturningError(t *testing.T) {
	_, err := invoke(context.Background(), "Math", mathService{}, "Divide", []any{float64(1), float64(0)})
	if err == nil {
		t.Fatal("expected a division-by-zero error")
	}
}

func TestInvokeUnknownMethod(t *testing.T) {
	_, err := invoke(context.Background(), "Math", mathService{}, "DoesNotExist", nil)
	if err == nil {
		t.Fatal("expected an error for an unknown method")
	}
}

func TestInvokeNoArgsNoReturn(t *testing.T) {
	result, err := invoke(context.Background(), "Math", mathService{}, "NoArgsNoReturn", nil)
	if err != nil {
		t.Fatal(err)
	}
	if result != nil {
		t.Errorf("got %v, want nil", result)
	}
}
