// Copyright 2026 The TrustFabric Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package apperr

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GRPCCode maps a kind to its gRPC status code.
func GRPCCode(kind Kind) codes.Code {
	switch kind {
	case InvalidArgument:
		return codes.InvalidArgument
	case Unauthenticated:
		return codes.Unauthenticated
	case PermissionDenied:
		return codes.PermissionDenied
	case NotFound:
		return codes.NotFound
	case AlreadyExists:
		return codes.AlreadyExists
	case FailedPrecondition:
		return codes.FailedPrecondition
	case ResourceExhausted:
		return codes.ResourceExhausted
	case Unavailable:
		return codes.Unavailable
	case DeadlineExceeded:
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}

// KindFromGRPCCode is the inverse of GRPCCode. Unknown codes collapse
// to Internal.
func KindFromGRPCCode(c codes.Code) Kind {
	switch c {
	case codes.InvalidArgument:
		return InvalidArgument
	case codes.Unauthenticated:
		return Unauthenticated
	case codes.PermissionDenied:
		return PermissionDenied
	case codes.NotFound:
		return NotFound
	case codes.AlreadyExists:
		return AlreadyExists
	case codes.FailedPrecondition:
		return FailedPrecondition
	case codes.ResourceExhausted:
		return ResourceExhausted
	case codes.Unavailable:
		return Unavailable
	case codes.DeadlineExceeded:
		return DeadlineExceeded
	default:
		return Internal
	}
}

// ToGRPCStatus converts any error to a gRPC status carrying only the
// client-safe message.
func ToGRPCStatus(err error) *status.Status {
	if err == nil {
		return status.New(codes.OK, "")
	}
	return status.New(GRPCCode(KindOf(err)), MessageOf(err))
}

// FromGRPCStatus converts a gRPC status back into a tagged error.
// Returns nil for OK.
func FromGRPCStatus(st *status.Status) error {
	if st == nil || st.Code() == codes.OK {
		return nil
	}
	return E(KindFromGRPCCode(st.Code()), "%s", st.Message())
}
