// Copyright 2026 Parsec DB, Inc.
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

package async

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// GoWithCancel runs f on eg with a context that can be individually
// cancelled through the returned function. A context.Canceled error caused
// by that local cancellation is swallowed; one inherited from ctx is not.
func GoWithCancel(ctx context.Context, eg *errgroup.Group, f func(ctx context.Context) error) func() {
	fctx, cancel := context.WithCancel(ctx)
	eg.Go(func() error {
		err := f(fctx)
		if errors.Is(err, context.Canceled) && ctx.Err() == nil {
			return nil
		}
		return err
	})
	return cancel
}
