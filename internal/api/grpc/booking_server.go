package grpc

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"equiprent-backend/internal/domain"
	"equiprent-backend/internal/service"
	"equiprent-backend/internal/utils"
)

// BookingServiceName is the full gRPC name of the booking service.
const BookingServiceName = "equiprent.v1.BookingService"

// bookingRPC is the method set the service descriptor dispatches to. Every
// message is a google.protobuf.Struct holding the JSON document the HTTP API
// uses for the same call.
type bookingRPC interface {
	CheckAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Quote(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Commit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Release(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Extend(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Reschedule(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	SyncBookingStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Utilization(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// BookingServer exposes the booking service to gRPC hosts of the CRUD layer.
// It returns engine errors unchanged; interceptor.ErrorUnary turns them into
// statuses.
type BookingServer struct {
	svc service.BookingService
}

var _ bookingRPC = (*BookingServer)(nil)

func NewBookingServer(svc service.BookingService) *BookingServer {
	return &BookingServer{svc: svc}
}

// RegisterBookingServer registers srv on s.
func RegisterBookingServer(s grpc.ServiceRegistrar, srv *BookingServer) {
	s.RegisterService(&bookingServiceDesc, srv)
}

type rpcMethod func(srv bookingRPC, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call rpcMethod) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := "/" + BookingServiceName + "/" + name
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(bookingRPC), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(bookingRPC), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var bookingServiceDesc = grpc.ServiceDesc{
	ServiceName: BookingServiceName,
	HandlerType: (*bookingRPC)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CheckAvailability", Handler: unaryHandler("CheckAvailability", bookingRPC.CheckAvailability)},
		{MethodName: "Quote", Handler: unaryHandler("Quote", bookingRPC.Quote)},
		{MethodName: "Commit", Handler: unaryHandler("Commit", bookingRPC.Commit)},
		{MethodName: "Release", Handler: unaryHandler("Release", bookingRPC.Release)},
		{MethodName: "Extend", Handler: unaryHandler("Extend", bookingRPC.Extend)},
		{MethodName: "Reschedule", Handler: unaryHandler("Reschedule", bookingRPC.Reschedule)},
		{MethodName: "SyncBookingStatus", Handler: unaryHandler("SyncBookingStatus", bookingRPC.SyncBookingStatus)},
		{MethodName: "Utilization", Handler: unaryHandler("Utilization", bookingRPC.Utilization)},
	},
	Streams: []grpc.StreamDesc{},
}

type bookableMessage struct {
	Kind domain.BookableKind `json:"kind"`
	ID   int64               `json:"id"`
}

type lineMessage struct {
	Bookable            bookableMessage `json:"bookable"`
	Start               string          `json:"start"`
	End                 string          `json:"end"`
	Quantity            int             `json:"quantity"`
	LineDiscountPercent decimal.Decimal `json:"line_discount_percent"`
}

type commitMessage struct {
	lineMessage
	BookingID      int64                `json:"booking_id"`
	BookingStatus  domain.BookingStatus `json:"booking_status"`
	IdempotencyKey string               `json:"idempotency_key"`
}

type commitResult struct {
	CommitmentID domain.CommitmentID `json:"commitment_id"`
	State        domain.LineState    `json:"state"`
	Quote        *domain.PriceQuote  `json:"quote,omitempty"`
}

type commitmentMessage struct {
	CommitmentID string `json:"commitment_id"`
	NewEnd       string `json:"new_end,omitempty"`
	Start        string `json:"start,omitempty"`
	End          string `json:"end,omitempty"`
}

type bookingStatusMessage struct {
	BookingID int64                `json:"booking_id"`
	Status    domain.BookingStatus `json:"status"`
}

type utilizationMessage struct {
	ItemID int64  `json:"item_id"`
	Start  string `json:"start"`
	End    string `json:"end"`
}

func decodeRequest(in *structpb.Struct, v any) error {
	raw, err := protojson.Marshal(in)
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	return nil
}

func encodeResponse(v any) (*structpb.Struct, error) {
	out := &structpb.Struct{}
	if v == nil {
		return out, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}

func parseRange(start, end string) (domain.DateRange, error) {
	s, err := utils.ParseDate(start)
	if err != nil {
		return domain.DateRange{}, status.Errorf(codes.InvalidArgument, "start: %v", err)
	}
	e, err := utils.ParseDate(end)
	if err != nil {
		return domain.DateRange{}, status.Errorf(codes.InvalidArgument, "end: %v", err)
	}
	return domain.DateRange{Start: s, End: e}, nil
}

func parseCommitmentID(v string) (domain.CommitmentID, error) {
	id, err := uuid.Parse(v)
	if err != nil {
		return uuid.Nil, status.Error(codes.InvalidArgument, "invalid commitment_id")
	}
	return id, nil
}

func (m lineMessage) ref() domain.BookableRef {
	return domain.BookableRef{Kind: m.Bookable.Kind, ID: m.Bookable.ID}
}

func (s *BookingServer) CheckAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	companyID, err := GetCompanyIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var msg lineMessage
	if err := decodeRequest(req, &msg); err != nil {
		return nil, err
	}
	r, err := parseRange(msg.Start, msg.End)
	if err != nil {
		return nil, err
	}

	avail, err := s.svc.CheckAvailability(ctx, companyID, msg.ref(), r, msg.Quantity)
	if err != nil {
		return nil, err
	}
	return encodeResponse(avail)
}

func (s *BookingServer) Quote(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	companyID, err := GetCompanyIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var msg lineMessage
	if err := decodeRequest(req, &msg); err != nil {
		return nil, err
	}
	r, err := parseRange(msg.Start, msg.End)
	if err != nil {
		return nil, err
	}

	quote, err := s.svc.Quote(ctx, companyID, msg.ref(), r, msg.Quantity, msg.LineDiscountPercent)
	if err != nil {
		return nil, err
	}
	return encodeResponse(quote)
}

func (s *BookingServer) Commit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	companyID, err := GetCompanyIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var msg commitMessage
	if err := decodeRequest(req, &msg); err != nil {
		return nil, err
	}
	r, err := parseRange(msg.Start, msg.End)
	if err != nil {
		return nil, err
	}

	line := &domain.LineItem{
		BookingID:           msg.BookingID,
		BookingStatus:       msg.BookingStatus,
		Bookable:            msg.ref(),
		Range:               r,
		Quantity:            msg.Quantity,
		LineDiscountPercent: msg.LineDiscountPercent,
		IdempotencyKey:      msg.IdempotencyKey,
		State:               domain.LineStateProposed,
	}
	id, err := s.svc.Commit(ctx, companyID, line)
	if err != nil {
		return nil, err
	}
	return encodeResponse(commitResult{CommitmentID: id, State: line.State, Quote: line.Quote})
}

func (s *BookingServer) Release(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	companyID, err := GetCompanyIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var msg commitmentMessage
	if err := decodeRequest(req, &msg); err != nil {
		return nil, err
	}
	id, err := parseCommitmentID(msg.CommitmentID)
	if err != nil {
		return nil, err
	}

	if err := s.svc.Release(ctx, companyID, id); err != nil {
		return nil, err
	}
	return encodeResponse(nil)
}

func (s *BookingServer) Extend(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	companyID, err := GetCompanyIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var msg commitmentMessage
	if err := decodeRequest(req, &msg); err != nil {
		return nil, err
	}
	id, err := parseCommitmentID(msg.CommitmentID)
	if err != nil {
		return nil, err
	}
	newEnd, err := utils.ParseDate(msg.NewEnd)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "new_end: %v", err)
	}

	quote, err := s.svc.Extend(ctx, companyID, id, newEnd)
	if err != nil {
		return nil, err
	}
	return encodeResponse(quote)
}

func (s *BookingServer) Reschedule(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	companyID, err := GetCompanyIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var msg commitmentMessage
	if err := decodeRequest(req, &msg); err != nil {
		return nil, err
	}
	id, err := parseCommitmentID(msg.CommitmentID)
	if err != nil {
		return nil, err
	}
	r, err := parseRange(msg.Start, msg.End)
	if err != nil {
		return nil, err
	}

	quote, err := s.svc.Reschedule(ctx, companyID, id, r)
	if err != nil {
		return nil, err
	}
	return encodeResponse(quote)
}

func (s *BookingServer) SyncBookingStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	companyID, err := GetCompanyIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var msg bookingStatusMessage
	if err := decodeRequest(req, &msg); err != nil {
		return nil, err
	}

	if err := s.svc.SyncBookingStatus(ctx, companyID, msg.BookingID, msg.Status); err != nil {
		return nil, err
	}
	return encodeResponse(nil)
}

func (s *BookingServer) Utilization(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	companyID, err := GetCompanyIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var msg utilizationMessage
	if err := decodeRequest(req, &msg); err != nil {
		return nil, err
	}
	r, err := parseRange(msg.Start, msg.End)
	if err != nil {
		return nil, err
	}

	u, err := s.svc.Utilization(ctx, companyID, msg.ItemID, r)
	if err != nil {
		return nil, err
	}
	return encodeResponse(u)
}
