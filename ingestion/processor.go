// Copyright 2025 Poiesic Systems
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


package ingestion

import (
	"context"

	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/core"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/state"
)

// run carries one document through its stages. Results of committed
// stages are kept in memory; a resumed run loads them from the ledger.
type run struct {
	doc       *core.RawDocument
	claim     *state.Claim
	chunks    []core.Chunk
	embedded  []core.EmbeddedChunk
	fallbacks int
}

// processor performs the work of one stage.
type processor interface {
	// stage is the stage committed by a successful process call.
	stage() core.Stage

	// process does the stage's work and commits the stage through the claim.
	process(ctx context.Context, r *run) error
}
