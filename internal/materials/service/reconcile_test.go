package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bitfantasy/uplink-console/internal/materials/entity"
	"github.com/bitfantasy/uplink-console/internal/shared/erpapi"
)

// fakeUpstream 可计数的上游ERP桩
type fakeUpstream struct {
	server *httptest.Server

	getCount    int64
	patchCount  int64
	postCount   int64
	deleteCount int64

	lastPatch erpapi.LinePatchPayload
	lastItem  erpapi.LineItemInput

	failPatch bool
	detail    func() erpapi.DetailResponse
}

func newFakeUpstream(t *testing.T) *fakeUpstream {
	t.Helper()
	f := &fakeUpstream{}
	f.detail = func() erpapi.DetailResponse {
		return erpapi.DetailResponse{
			CanSeeSensitive: true,
			PrepStatus:      entity.PrepStatusPreparing,
			Header: erpapi.HeaderDTO{
				ID: 42, ProjectName: "테스트 프로젝트", Status: "ONGOING",
				CreatedAt: erpapi.Timestamp{Time: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)},
			},
			Items: []erpapi.LineDTO{
				{ID: 1, RequestID: 42, NameSnapshot: "板材", UnitSnapshot: "EA",
					QtyRequested: 10, PrepStatus: entity.PrepStatusPreparing},
				{ID: 2, RequestID: 42, NameSnapshot: "螺丝", UnitSnapshot: "EA",
					QtyRequested: 5, PrepStatus: entity.PrepStatusReady},
			},
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/material-requests/42", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&f.getCount, 1)
		json.NewEncoder(w).Encode(f.detail())
	})
	mux.HandleFunc("/api/material-requests/42/items", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&f.postCount, 1)
		json.NewDecoder(r.Body).Decode(&f.lastItem)
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/api/material-requests/42/mark-all-ready", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&f.postCount, 1)
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/material-requests/items/", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPatch:
			atomic.AddInt64(&f.patchCount, 1)
			if f.failPatch {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(`{"detail":"boom"}`))
				return
			}
			json.NewDecoder(r.Body).Decode(&f.lastPatch)
			w.WriteHeader(http.StatusOK)
		case http.MethodDelete:
			atomic.AddInt64(&f.deleteCount, 1)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func loadView(t *testing.T, f *fakeUpstream) (*ReconcileEngine, *RequestView) {
	t.Helper()
	engine := NewReconcileEngine(erpapi.NewClient(f.server.URL))
	view, err := engine.Load(context.Background(), "token", 42)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	atomic.StoreInt64(&f.getCount, 0)
	return engine, view
}

func TestPatchReadyLineRejectedBeforeNetwork(t *testing.T) {
	f := newFakeUpstream(t)
	engine, view := loadView(t, f)

	err := engine.Patch(context.Background(), "token", view, 2, LinePatch{QtyRequested: float64Ptr(7)})
	if !errors.Is(err, ErrLineLocked) {
		t.Fatalf("err = %v, want ErrLineLocked", err)
	}
	if n := atomic.LoadInt64(&f.patchCount); n != 0 {
		t.Errorf("patch count = %d, want 0 (rejection must happen before any network call)", n)
	}
	if view.findLine(2).QtyRequested != 5 {
		t.Error("stored quantity must stay unchanged on rejected patch")
	}
}

func TestPatchInvalidQuantityRejected(t *testing.T) {
	f := newFakeUpstream(t)
	engine, view := loadView(t, f)

	for _, q := range []float64{-1, math.NaN(), math.Inf(1)} {
		err := engine.Patch(context.Background(), "token", view, 1, LinePatch{QtyRequested: float64Ptr(q)})
		if !errors.Is(err, ErrInvalidQuantity) {
			t.Errorf("qty %v: err = %v, want ErrInvalidQuantity", q, err)
		}
	}
	if n := atomic.LoadInt64(&f.patchCount); n != 0 {
		t.Errorf("patch count = %d, want 0", n)
	}
	if view.findLine(1).QtyRequested != 10 {
		t.Error("stored quantity must stay unchanged on invalid commit")
	}
}

func TestPatchNoteDoesNotReload(t *testing.T) {
	f := newFakeUpstream(t)
	engine, view := loadView(t, f)

	if err := engine.Patch(context.Background(), "token", view, 1, LinePatch{Note: strPtr("수기 메모")}); err != nil {
		t.Fatalf("Patch failed: %v", err)
	}
	if n := atomic.LoadInt64(&f.getCount); n != 0 {
		t.Errorf("reload count = %d, want 0 for note-only patch", n)
	}
	if view.findLine(1).Note != "수기 메모" {
		t.Error("note must be applied to the local view")
	}
}

func TestPatchQtyAutoTransitionsToChanged(t *testing.T) {
	f := newFakeUpstream(t)
	engine, view := loadView(t, f)

	if err := engine.Patch(context.Background(), "token", view, 1, LinePatch{QtyRequested: float64Ptr(12)}); err != nil {
		t.Fatalf("Patch failed: %v", err)
	}
	if f.lastPatch.PrepStatus == nil || *f.lastPatch.PrepStatus != entity.PrepStatusChanged {
		t.Errorf("upstream payload prep_status = %v, want CHANGED", f.lastPatch.PrepStatus)
	}
	// CHANGED迁移按策略表触发整单重载
	if n := atomic.LoadInt64(&f.getCount); n != 1 {
		t.Errorf("reload count = %d, want 1", n)
	}
}

func TestPatchQtyUsedTriggersReload(t *testing.T) {
	f := newFakeUpstream(t)
	engine, view := loadView(t, f)

	if err := engine.Patch(context.Background(), "token", view, 1, LinePatch{QtyUsed: float64Ptr(3)}); err != nil {
		t.Fatalf("Patch failed: %v", err)
	}
	if n := atomic.LoadInt64(&f.getCount); n != 1 {
		t.Errorf("reload count = %d, want 1 for qty_used patch", n)
	}
}

func TestPatchToReadyRequiresConfirmation(t *testing.T) {
	f := newFakeUpstream(t)
	engine, view := loadView(t, f)

	ready := entity.PrepStatusReady
	err := engine.Patch(context.Background(), "token", view, 1, LinePatch{PrepStatus: &ready})

	var confirm *ConfirmationError
	if !errors.As(err, &confirm) {
		t.Fatalf("err = %v, want ConfirmationError", err)
	}
	// 确认信息引用当前请求量与有效使用量
	if confirm.QtyRequested != 10 || confirm.EffectiveUsedQty != 10 {
		t.Errorf("confirmation quantities = %g/%g, want 10/10", confirm.QtyRequested, confirm.EffectiveUsedQty)
	}
	if n := atomic.LoadInt64(&f.patchCount); n != 0 {
		t.Errorf("patch count = %d, want 0 before confirmation", n)
	}

	// 确认后放行并重载
	if err := engine.Patch(context.Background(), "token", view, 1, LinePatch{PrepStatus: &ready, Confirmed: true}); err != nil {
		t.Fatalf("confirmed patch failed: %v", err)
	}
	if n := atomic.LoadInt64(&f.getCount); n != 1 {
		t.Errorf("reload count = %d, want 1 after READY transition", n)
	}
}

func TestPatchInvalidTransition(t *testing.T) {
	f := newFakeUpstream(t)
	engine, view := loadView(t, f)

	// READY行的状态字段修改被锁定拦截
	preparing := entity.PrepStatusPreparing
	err := engine.Patch(context.Background(), "token", view, 2, LinePatch{PrepStatus: &preparing})
	if !errors.Is(err, ErrLineLocked) {
		t.Fatalf("err = %v, want ErrLineLocked", err)
	}

	// 未知状态值
	bogus := "SHIPPED"
	err = engine.Patch(context.Background(), "token", view, 1, LinePatch{PrepStatus: &bogus})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestPatchRollbackOnUpstreamFailure(t *testing.T) {
	f := newFakeUpstream(t)
	engine, view := loadView(t, f)
	f.failPatch = true

	err := engine.Patch(context.Background(), "token", view, 1, LinePatch{Note: strPtr("lost")})
	if err == nil {
		t.Fatal("expected upstream error")
	}
	// 上游错误体逐字透出
	if err.Error() != `{"detail":"boom"}` {
		t.Errorf("error body = %q, want upstream body verbatim", err.Error())
	}
	// 乐观应用的修改整行回滚
	if view.findLine(1).Note != "" {
		t.Error("optimistic note must be rolled back on failure")
	}
}

func TestPatchUnknownLine(t *testing.T) {
	f := newFakeUpstream(t)
	engine, view := loadView(t, f)

	err := engine.Patch(context.Background(), "token", view, 999, LinePatch{Note: strPtr("x")})
	if !errors.Is(err, ErrLineNotFound) {
		t.Fatalf("err = %v, want ErrLineNotFound", err)
	}
}

func TestAddNormalizesAndReloads(t *testing.T) {
	f := newFakeUpstream(t)
	engine, view := loadView(t, f)

	err := engine.Add(context.Background(), "token", view, entity.LineInput{
		NameSnapshot: "新物料",
		QtyRequested: -3,
	})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if f.lastItem.UnitSnapshot != "EA" {
		t.Errorf("unit = %q, want EA default", f.lastItem.UnitSnapshot)
	}
	if f.lastItem.QtyRequested != 0 {
		t.Errorf("qty = %v, want negative clamped to 0", f.lastItem.QtyRequested)
	}
	if n := atomic.LoadInt64(&f.getCount); n != 1 {
		t.Errorf("reload count = %d, want 1 after add", n)
	}
}

func TestAddRejectsNaN(t *testing.T) {
	f := newFakeUpstream(t)
	engine, view := loadView(t, f)

	err := engine.Add(context.Background(), "token", view, entity.LineInput{QtyRequested: math.NaN()})
	if !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("err = %v, want ErrInvalidQuantity", err)
	}
	if n := atomic.LoadInt64(&f.postCount); n != 0 {
		t.Errorf("post count = %d, want 0", n)
	}
}

func TestRemove(t *testing.T) {
	f := newFakeUpstream(t)
	engine, view := loadView(t, f)

	// READY行不可删除
	if err := engine.Remove(context.Background(), "token", view, 2, true); !errors.Is(err, ErrLineLocked) {
		t.Fatalf("err = %v, want ErrLineLocked", err)
	}
	// 未确认不放行
	if err := engine.Remove(context.Background(), "token", view, 1, false); !errors.Is(err, ErrConfirmationRequired) {
		t.Fatalf("err = %v, want ErrConfirmationRequired", err)
	}
	if n := atomic.LoadInt64(&f.deleteCount); n != 0 {
		t.Errorf("delete count = %d, want 0", n)
	}

	if err := engine.Remove(context.Background(), "token", view, 1, true); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if n := atomic.LoadInt64(&f.deleteCount); n != 1 {
		t.Errorf("delete count = %d, want 1", n)
	}
	if n := atomic.LoadInt64(&f.getCount); n != 1 {
		t.Errorf("reload count = %d, want 1 after remove", n)
	}
}

func TestMarkAllReadyReloads(t *testing.T) {
	f := newFakeUpstream(t)
	engine, view := loadView(t, f)

	if err := engine.MarkAllReady(context.Background(), "token", view); err != nil {
		t.Fatalf("MarkAllReady failed: %v", err)
	}
	if n := atomic.LoadInt64(&f.getCount); n != 1 {
		t.Errorf("reload count = %d, want 1", n)
	}
}

// 过期重载结果不得覆盖更新的重载（按发起顺序判定，而非完成顺序）
func TestStaleReloadDiscarded(t *testing.T) {
	f := newFakeUpstream(t)
	_, view := loadView(t, f)

	genOld := view.beginReload()
	genNew := view.beginReload()

	newDetail := f.detail()
	newDetail.Header.ProjectName = "newer"
	if ok := view.commitReload(genNew, &newDetail); !ok {
		t.Fatal("newer reload must be applied")
	}

	oldDetail := f.detail()
	oldDetail.Header.ProjectName = "stale"
	if ok := view.commitReload(genOld, &oldDetail); ok {
		t.Fatal("stale reload must be discarded")
	}
	if view.Header.ProjectName != "newer" {
		t.Errorf("header = %q, want result of newer reload", view.Header.ProjectName)
	}
}
