package grpcserver

import (
	"context"
	"errors"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"jobmate/acquisition-service/internal/identity"
	"jobmate/acquisition-service/internal/ledger"
	"jobmate/acquisition-service/internal/store"
)

// Full method names of the AcquisitionService RPCs. Requests and responses
// are google.protobuf.Struct messages so callers need no generated stubs.
const (
	MethodExistsForContext = "/" + ServiceName + "/ExistsForContext"
	MethodSavings          = "/" + ServiceName + "/Savings"
)

// Checker answers composite-key membership for a raw or canonical URL.
type Checker interface {
	ExistsForContext(ctx context.Context, url, searchContext, profileIdentity string) (bool, error)
}

// SavingsReporter aggregates the acquisition ledger.
type SavingsReporter interface {
	Savings(ctx context.Context, q ledger.SavingsQuery, costs ledger.Costs) (ledger.SavingsReport, error)
}

// acquisitionService implements the AcquisitionService RPCs.
type acquisitionService struct {
	checker Checker
	savings SavingsReporter
	costs   ledger.Costs
	now     func() time.Time
}

type acquisitionServer interface {
	existsForContext(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	savingsReport(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var acquisitionServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*acquisitionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ExistsForContext", Handler: unaryHandler(MethodExistsForContext, acquisitionServer.existsForContext)},
		{MethodName: "Savings", Handler: unaryHandler(MethodSavings, acquisitionServer.savingsReport)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "jobmate/acquisition/v1/acquisition.proto",
}

// RegisterAcquisition exposes the membership and savings RPCs. It must be
// called before Serve.
func (s *Server) RegisterAcquisition(checker Checker, savings SavingsReporter, costs ledger.Costs) {
	s.grpc.RegisterService(&acquisitionServiceDesc, &acquisitionService{
		checker: checker,
		savings: savings,
		costs:   costs,
		now:     time.Now,
	})
}

func unaryHandler(method string, call func(acquisitionServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(acquisitionServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(acquisitionServer), ctx, req.(*structpb.Struct))
		})
	}
}

// ─── RPC implementations ──────────────────────────────────────────────────────

// existsForContext expects url, searchContext and profileIdentity.
func (a *acquisitionService) existsForContext(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	rawURL := stringField(req, "url")
	searchContext := stringField(req, "searchContext")
	profileIdentity := stringField(req, "profileIdentity")
	if rawURL == "" || searchContext == "" || profileIdentity == "" {
		return nil, status.Error(codes.InvalidArgument, "url, searchContext and profileIdentity are required")
	}

	ok, err := a.checker.ExistsForContext(ctx, rawURL, searchContext, profileIdentity)
	if err != nil {
		return nil, toGRPCError(err)
	}
	return structpb.NewStruct(map[string]any{
		"exists":          ok,
		"searchContext":   searchContext,
		"profileIdentity": profileIdentity,
	})
}

// savingsReport accepts an optional searchContext and an optional RFC 3339
// since; the default window is the last 30 days.
func (a *acquisitionService) savingsReport(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	since := a.now().Add(-30 * 24 * time.Hour)
	if s := stringField(req, "since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, "since must be an RFC 3339 time")
		}
		since = t
	}

	r, err := a.savings.Savings(ctx, ledger.SavingsQuery{SearchContext: stringField(req, "searchContext"), Since: since}, a.costs)
	if err != nil {
		return nil, toGRPCError(err)
	}
	return structpb.NewStruct(map[string]any{
		"runs":              r.Runs,
		"pagesFetched":      r.PagesFetched,
		"pagesAvoided":      r.PagesAvoided,
		"itemsSeen":         r.ItemsSeen,
		"newItems":          r.NewItems,
		"duplicatesSkipped": r.DuplicatesSkipped,
		"failedPages":       r.FailedPages,
		"estimatedSavings":  r.EstimatedSavings,
	})
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func stringField(s *structpb.Struct, key string) string {
	return strings.TrimSpace(s.GetFields()[key].GetStringValue())
}

// toGRPCError maps domain errors to gRPC status errors.
func toGRPCError(err error) error {
	switch {
	case errors.Is(err, identity.ErrNormalization):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, store.ErrUnavailable):
		return status.Error(codes.Unavailable, "existence store unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, "internal server error")
}
