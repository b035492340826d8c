package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "contracts.v1.ContractParser"

// Method names, relative to ServiceName.
const (
	MethodSubmitParse       = "SubmitParse"
	MethodParseText         = "ParseText"
	MethodGetProgress       = "GetProgress"
	MethodScoreCompleteness = "ScoreCompleteness"
	MethodInspectChunks     = "InspectChunks"
	MethodGetRecord         = "GetRecord"
	MethodListRecords       = "ListRecords"
	MethodExportRecord      = "ExportRecord"
	MethodIngestDirectory   = "IngestDirectory"
)

// ContractParserServer is the server API. Every message is a structpb.Struct whose
// fields follow the JSON names of the request and response types in this package.
type ContractParserServer interface {
	SubmitParse(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ParseText(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetProgress(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ScoreCompleteness(context.Context, *structpb.Struct) (*structpb.Struct, error)
	InspectChunks(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetRecord(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListRecords(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExportRecord(context.Context, *structpb.Struct) (*structpb.Struct, error)
	IngestDirectory(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(ContractParserServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call unaryCall) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ContractParserServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ContractParserServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ContractParserServiceDesc is the grpc.ServiceDesc for ContractParser.
var ContractParserServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ContractParserServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodSubmitParse, ContractParserServer.SubmitParse),
		unary(MethodParseText, ContractParserServer.ParseText),
		unary(MethodGetProgress, ContractParserServer.GetProgress),
		unary(MethodScoreCompleteness, ContractParserServer.ScoreCompleteness),
		unary(MethodInspectChunks, ContractParserServer.InspectChunks),
		unary(MethodGetRecord, ContractParserServer.GetRecord),
		unary(MethodListRecords, ContractParserServer.ListRecords),
		unary(MethodExportRecord, ContractParserServer.ExportRecord),
		unary(MethodIngestDirectory, ContractParserServer.IngestDirectory),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "contracts/v1/contract_parser.proto",
}

func RegisterContractParserServer(s grpc.ServiceRegistrar, srv ContractParserServer) {
	s.RegisterService(&ContractParserServiceDesc, srv)
}

// ContractParserClient calls ContractParser methods by name.
type ContractParserClient struct {
	cc grpc.ClientConnInterface
}

func NewContractParserClient(cc grpc.ClientConnInterface) *ContractParserClient {
	return &ContractParserClient{cc: cc}
}

// Call invokes method with in and returns the response struct.
func (c *ContractParserClient) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
