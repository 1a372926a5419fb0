package evolved

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/GoSim-25-26J-441/race-evolution/pkg/config"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/logger"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/models"
)

// EvolutionServiceName is the fully qualified gRPC service name
const EvolutionServiceName = "evolution.v1.EvolutionService"

// EvolutionServiceServer is the gRPC run API. Messages are JSON-shaped
// structpb.Struct values mirroring the HTTP bodies.
type EvolutionServiceServer interface {
	CreateRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	StartRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	StopRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListRuns(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

func unaryHandler(method string, call func(EvolutionServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(EvolutionServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + EvolutionServiceName + "/" + method,
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(EvolutionServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// EvolutionServiceDesc describes the service for grpc.Server.RegisterService
var EvolutionServiceDesc = grpc.ServiceDesc{
	ServiceName: EvolutionServiceName,
	HandlerType: (*EvolutionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("CreateRun", EvolutionServiceServer.CreateRun),
		unaryHandler("StartRun", EvolutionServiceServer.StartRun),
		unaryHandler("StopRun", EvolutionServiceServer.StopRun),
		unaryHandler("GetRun", EvolutionServiceServer.GetRun),
		unaryHandler("ListRuns", EvolutionServiceServer.ListRuns),
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterEvolutionServiceServer registers srv on s
func RegisterEvolutionServiceServer(s grpc.ServiceRegistrar, srv EvolutionServiceServer) {
	s.RegisterService(&EvolutionServiceDesc, srv)
}

// EvolutionServiceClient calls the run API over a gRPC connection
type EvolutionServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewEvolutionServiceClient(cc grpc.ClientConnInterface) *EvolutionServiceClient {
	return &EvolutionServiceClient{cc: cc}
}

func (c *EvolutionServiceClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+EvolutionServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *EvolutionServiceClient) CreateRun(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "CreateRun", in, opts...)
}

func (c *EvolutionServiceClient) StartRun(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "StartRun", in, opts...)
}

func (c *EvolutionServiceClient) StopRun(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "StopRun", in, opts...)
}

func (c *EvolutionServiceClient) GetRun(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetRun", in, opts...)
}

func (c *EvolutionServiceClient) ListRuns(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "ListRuns", in, opts...)
}

// EvolutionGRPCServer implements EvolutionServiceServer using a RunStore backend.
type EvolutionGRPCServer struct {
	store    *RunStore
	Executor *RunExecutor
	defaults config.Config
}

// NewEvolutionGRPCServer creates a server; defaults fill omitted run parameters.
func NewEvolutionGRPCServer(store *RunStore, executor *RunExecutor, defaults config.Config) *EvolutionGRPCServer {
	return &EvolutionGRPCServer{
		store:    store,
		Executor: executor,
		defaults: defaults,
	}
}

func (s *EvolutionGRPCServer) CreateRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	create := CreateRunRequest{
		Evolution: s.defaults.Evolution,
		Simulator: s.defaults.Simulator,
	}
	if err := fromStruct(req, &create); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	input := RunInput{
		Evolution:      create.Evolution,
		Simulator:      create.Simulator,
		CallbackURL:    create.CallbackURL,
		CallbackSecret: create.CallbackSecret,
	}
	if err := input.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	rec, err := s.store.Create(create.RunID, input)
	if err != nil {
		return nil, grpcError(err)
	}
	logger.Info("run created", "run_id", rec.Run.ID)

	if create.Start {
		if rec, err = s.Executor.Start(rec.Run.ID); err != nil {
			return nil, grpcError(err)
		}
	}
	return runResponse(rec.Run)
}

func (s *EvolutionGRPCServer) StartRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	runID, err := requireRunID(req)
	if err != nil {
		return nil, err
	}
	updated, err := s.Executor.Start(runID)
	if err != nil {
		return nil, grpcError(err)
	}
	logger.Info("run started (executor)", "run_id", runID)
	return runResponse(updated.Run)
}

func (s *EvolutionGRPCServer) StopRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	runID, err := requireRunID(req)
	if err != nil {
		return nil, err
	}
	updated, err := s.Executor.Stop(runID)
	if err != nil {
		return nil, grpcError(err)
	}
	logger.Info("run cancelled", "run_id", runID)
	return runResponse(updated.Run)
}

func (s *EvolutionGRPCServer) GetRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	runID, err := requireRunID(req)
	if err != nil {
		return nil, err
	}
	rec, ok := s.store.Get(runID)
	if !ok {
		return nil, status.Error(codes.NotFound, "run not found")
	}
	return toStruct(map[string]any{"run": rec.Run, "best": rec.Best})
}

func (s *EvolutionGRPCServer) ListRuns(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var query struct {
		Limit  int              `json:"limit"`
		Status models.RunStatus `json:"status"`
	}
	if err := fromStruct(req, &query); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	limit := 50
	if query.Limit > 0 {
		limit = query.Limit
	}
	recs := s.store.List(limit, query.Status)
	runs := make([]models.Run, 0, len(recs))
	for _, rec := range recs {
		runs = append(runs, rec.Run)
	}
	return toStruct(map[string]any{"runs": runs})
}

func requireRunID(req *structpb.Struct) (string, error) {
	if req == nil {
		return "", status.Error(codes.InvalidArgument, ErrRunIDMissing.Error())
	}
	v, ok := req.GetFields()["run_id"]
	if !ok || v.GetStringValue() == "" {
		return "", status.Error(codes.InvalidArgument, ErrRunIDMissing.Error())
	}
	return v.GetStringValue(), nil
}

func runResponse(run models.Run) (*structpb.Struct, error) {
	return toStruct(map[string]any{"run": run})
}

// fromStruct decodes a struct message into v through its JSON form, so
// fields missing from the message keep their current values.
func fromStruct(in *structpb.Struct, v any) error {
	if in == nil {
		return nil
	}
	data, err := json.Marshal(in.AsMap())
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}

// toStruct converts a JSON-encodable value into a struct message
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func grpcError(err error) error {
	switch {
	case errors.Is(err, ErrRunIDMissing), errors.Is(err, config.ErrInvalidConfig):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, ErrRunNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, ErrRunExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, ErrRunTerminal):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
