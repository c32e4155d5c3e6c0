package model

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/atomic"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Methods served by the remote model. Both exchange google.protobuf.Struct messages.
const (
	DescribeMethod = "/yield.v1.YieldModel/Describe"
	PredictMethod  = "/yield.v1.YieldModel/Predict"
)

// RemoteModel forwards predictions to a model server over gRPC.
type RemoteModel struct {
	conn    *grpc.ClientConn
	timeout time.Duration
	circuit *gobreaker.CircuitBreaker

	available *atomic.Bool

	mu      sync.RWMutex
	crops   []string
	version string
}

// DialRemote connects to the model server and describes it once.
// A server that cannot be described leaves the model unavailable rather than failing;
// callers that need a model must check Available.
func DialRemote(ctx context.Context, addr string, timeout time.Duration) (*RemoteModel, error) {
	if addr == "" {
		return nil, errors.New("model server address is empty")
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to model server: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	m := &RemoteModel{
		conn:    conn,
		timeout: timeout,
		circuit: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "model",
			MaxRequests: 5,
			Interval:    1 * time.Minute,
			Timeout:     30 * time.Second,
			// Unknown crops are caller errors, not server failures.
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrCropNotRecognized)
			},
		}),
		available: atomic.NewBool(false),
	}
	if err := m.Refresh(ctx); err != nil {
		log.Printf("WARN: model server %s could not be described: %v", addr, err)
	}
	return m, nil
}

// Refresh re-reads the crop list and version from the server and updates availability.
func (m *RemoteModel) Refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	reply := &structpb.Struct{}
	if err := m.conn.Invoke(ctx, DescribeMethod, &structpb.Struct{}, reply); err != nil {
		m.available.Store(false)
		return err
	}

	fields := reply.AsMap()
	version, _ := fields["version"].(string)
	var crops []string
	if list, ok := fields["crops"].([]interface{}); ok {
		for _, c := range list {
			if s, ok := c.(string); ok && s != "" {
				crops = append(crops, s)
			}
		}
	}
	if len(crops) == 0 {
		m.available.Store(false)
		return errors.New("model server reported no crops")
	}
	sort.Strings(crops)

	m.mu.Lock()
	m.crops = crops
	m.version = version
	m.mu.Unlock()
	m.available.Store(true)
	return nil
}

func (m *RemoteModel) Available() bool {
	return m.available.Load()
}

func (m *RemoteModel) Crops() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.crops...)
}

func (m *RemoteModel) Version() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

func (m *RemoteModel) Predict(ctx context.Context, in Input) (Outcome, error) {
	if !m.Available() {
		return Outcome{}, ErrUnavailable
	}

	req, err := structpb.NewStruct(map[string]interface{}{
		"crop":       in.Crop,
		"area":       in.Area,
		"production": in.Production,
		"rainfall":   in.Rainfall,
		"fertilizer": in.Fertilizer,
		"pesticide":  in.Pesticide,
	})
	if err != nil {
		return Outcome{}, err
	}

	result, err := m.circuit.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, m.timeout)
		defer cancel()

		reply := &structpb.Struct{}
		if err := m.conn.Invoke(callCtx, PredictMethod, req, reply); err != nil {
			if st, ok := status.FromError(err); ok && (st.Code() == codes.NotFound || st.Code() == codes.InvalidArgument) {
				return nil, fmt.Errorf("%w: %s", ErrCropNotRecognized, st.Message())
			}
			return nil, err
		}
		return reply, nil
	})
	if err != nil {
		return Outcome{}, err
	}

	out, err := decodeOutcome(result.(*structpb.Struct).AsMap())
	if err != nil {
		return Outcome{}, err
	}
	if out.ModelVersion == "" {
		out.ModelVersion = m.Version()
	}
	if err := out.Validate(); err != nil {
		return Outcome{}, err
	}
	return out, nil
}

func (m *RemoteModel) Close() error {
	m.available.Store(false)
	return m.conn.Close()
}

func decodeOutcome(fields map[string]interface{}) (Outcome, error) {
	yield, ok := fields["predicted_yield"].(float64)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: predicted_yield missing", ErrInvalidOutcome)
	}
	out := Outcome{
		PredictedYield:     yield,
		ConfidenceInterval: Interval{Lower: yield, Upper: yield},
		FeatureImportance:  map[string]float64{},
	}
	out.ModelVersion, _ = fields["model_version"].(string)

	if ci, ok := fields["confidence_interval"].(map[string]interface{}); ok {
		lower, lok := ci["lower"].(float64)
		upper, uok := ci["upper"].(float64)
		if !lok || !uok {
			return Outcome{}, fmt.Errorf("%w: confidence_interval incomplete", ErrInvalidOutcome)
		}
		out.ConfidenceInterval = Interval{Lower: lower, Upper: upper}
	}
	if fi, ok := fields["feature_importance"].(map[string]interface{}); ok {
		for k, v := range fi {
			if f, ok := v.(float64); ok {
				out.FeatureImportance[k] = f
			}
		}
	}
	return out, nil
}
