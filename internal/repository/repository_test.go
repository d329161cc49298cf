package repository

import (
	"context"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/hyrox-registration/internal/database"
	"github.com/iliyamo/hyrox-registration/internal/model"
)

const testDate = "2026-10-18"

var testPairs = model.NewPairPolicy([]string{"Hyrox Pareja"})

func openTempStore(t *testing.T) (*database.DB, *SlotRepo, *RegistrationRepo) {
	t.Helper()
	db, err := database.Open(database.Options{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "registrations.db")})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, NewSlotRepo(db, testPairs), NewRegistrationRepo(db, testPairs)
}

func createSlot(t *testing.T, slots *SlotRepo, category, start string, capacity int) model.Slot {
	t.Helper()
	s := model.Slot{Category: category, EventDate: testDate, StartTime: start, EndTime: start[:3] + "30", Capacity: capacity}
	if err := slots.Create(context.Background(), &s); err != nil {
		t.Fatalf("create slot: %v", err)
	}
	return s
}

func person(name string) model.Person {
	return model.Person{FullName: name, Phone: "+34 600 111 222", Email: name + "@x.com"}
}

func fakeClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := next
		next = next.Add(time.Second)
		return now
	}
}

func TestBookConfirmsAndStoresRow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, slots, regs := openTempStore(t)
	regs.now = fakeClock(time.Date(2026, 10, 1, 8, 0, 0, 123456000, time.UTC))
	s := createSlot(t, slots, "Hyrox Individual", "09:00", 3)

	res, err := regs.Book(ctx, BookingRecord{SlotID: s.ID, Registrant: person("ana"), RequestKey: "key-00000001"})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if !res.OK || res.Code != CodeConfirmed || res.Registration == nil {
		t.Fatalf("result = %+v, want confirmed", res)
	}
	if res.Registration.ID == 0 || res.Registration.SlotID != s.ID {
		t.Fatalf("registration = %+v", res.Registration)
	}

	rows, err := regs.ListByDate(ctx, testDate)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	got := rows[0]
	if got.Category != "Hyrox Individual" || got.StartTime != "09:00" || got.Registrant != person("ana") {
		t.Fatalf("row = %+v", got)
	}
	if got.Partner != nil {
		t.Fatalf("partner = %+v, want nil", got.Partner)
	}
	if got.RequestKey == nil || *got.RequestKey != "key-00000001" {
		t.Fatalf("request key = %v", got.RequestKey)
	}
	if !got.CreatedAt.Equal(res.Registration.CreatedAt) {
		t.Fatalf("created_at = %v, want %v", got.CreatedAt, res.Registration.CreatedAt)
	}
}

func TestBookNoOversellUnderConcurrency(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, slots, regs := openTempStore(t)

	const capacity, extra = 5, 7
	s := createSlot(t, slots, "Hyrox Individual", "10:00", capacity)

	start := make(chan struct{})
	results := make(chan BookResult, capacity+extra)
	errs := make(chan error, capacity+extra)
	var wg sync.WaitGroup
	for i := 0; i < capacity+extra; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res, err := regs.Book(ctx, BookingRecord{SlotID: s.ID, Registrant: person("runner")})
			if err != nil {
				errs <- err
				return
			}
			results <- res
		}()
	}
	close(start)
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		t.Fatalf("book error: %v", err)
	}
	confirmed, full := 0, 0
	for res := range results {
		switch res.Code {
		case CodeConfirmed:
			confirmed++
		case CodeSlotFull:
			full++
		default:
			t.Fatalf("unexpected code %q", res.Code)
		}
	}
	if confirmed != capacity || full != extra {
		t.Fatalf("confirmed/full = %d/%d, want %d/%d", confirmed, full, capacity, extra)
	}
	n, err := regs.CountBySlot(ctx, s.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != capacity {
		t.Fatalf("rows = %d, want %d", n, capacity)
	}
}

// naiveBook is the two round trip check-then-insert that Book replaces.
func naiveBook(ctx context.Context, db *database.DB, slotID int64, between func()) (bool, error) {
	var capacity, booked int
	if err := db.QueryRowContext(ctx, `SELECT capacity FROM slots WHERE id = ?`, slotID).Scan(&capacity); err != nil {
		return false, err
	}
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM registrations WHERE slot_id = ?`, slotID).Scan(&booked); err != nil {
		return false, err
	}
	between()
	if booked >= capacity {
		return false, nil
	}
	_, err := db.ExecContext(ctx, `INSERT INTO registrations (slot_id, full_name, phone, email, created_at) VALUES (?, 'x', '600111222', 'x@x.com', ?)`,
		slotID, db.Dialect.TimeArg(time.Now()))
	return err == nil, err
}

func TestForcedRace(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db, slots, regs := openTempStore(t)

	t.Run("check then insert oversells", func(t *testing.T) {
		s := createSlot(t, slots, "Hyrox Individual", "11:00", 1)
		var barrier sync.WaitGroup
		barrier.Add(2)
		var wg sync.WaitGroup
		ok := make(chan bool, 2)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				confirmed, err := naiveBook(ctx, db, s.ID, func() {
					barrier.Done()
					barrier.Wait()
				})
				if err != nil {
					t.Errorf("naive book: %v", err)
				}
				ok <- confirmed
			}()
		}
		wg.Wait()
		close(ok)
		confirmed := 0
		for c := range ok {
			if c {
				confirmed++
			}
		}
		if confirmed != 2 {
			t.Fatalf("naive confirmed = %d, want 2 (oversold)", confirmed)
		}
	})

	t.Run("locked transaction does not", func(t *testing.T) {
		s := createSlot(t, slots, "Hyrox Individual", "12:00", 1)
		regs.afterCount = func() { time.Sleep(20 * time.Millisecond) }
		defer func() { regs.afterCount = nil }()

		var wg sync.WaitGroup
		codes := make(chan BookCode, 4)
		start := make(chan struct{})
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				res, err := regs.Book(ctx, BookingRecord{SlotID: s.ID, Registrant: person("racer")})
				if err != nil {
					t.Errorf("book: %v", err)
					return
				}
				codes <- res.Code
			}()
		}
		close(start)
		wg.Wait()
		close(codes)
		confirmed := 0
		for c := range codes {
			if c == CodeConfirmed {
				confirmed++
			}
		}
		if confirmed != 1 {
			t.Fatalf("confirmed = %d, want 1", confirmed)
		}
	})
}

func TestBookEndToEndLastUnit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db, slots, regs := openTempStore(t)

	if _, err := db.Exec(`INSERT INTO slots (id, category, event_date, start_time, end_time, capacity) VALUES (42, 'Hyrox Individual', ?, '09:00', '09:30', 2)`, testDate); err != nil {
		t.Fatalf("seed slot 42: %v", err)
	}
	if res, err := regs.Book(ctx, BookingRecord{SlotID: 42, Registrant: person("first")}); err != nil || !res.OK {
		t.Fatalf("seed booking: %+v, %v", res, err)
	}

	ana := model.Person{FullName: "Ana Ruiz", Phone: "+34 600 111 222", Email: "ana@x.com"}
	res, err := regs.Book(ctx, BookingRecord{SlotID: 42, Registrant: ana})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if res.Code != CodeConfirmed {
		t.Fatalf("code = %q, want confirmed", res.Code)
	}
	list, err := slots.ListByDate(ctx, testDate, "")
	if err != nil {
		t.Fatalf("list slots: %v", err)
	}
	if len(list) != 1 || list[0].Remaining != 0 || list[0].Booked != 2 {
		t.Fatalf("slots = %+v, want remaining 0", list)
	}

	res, err = regs.Book(ctx, BookingRecord{SlotID: 42, Registrant: person("late")})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if res.OK || res.Code != CodeSlotFull || res.Registration != nil {
		t.Fatalf("result = %+v, want slot_full", res)
	}
}

func TestBookSimultaneousLastUnit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, slots, regs := openTempStore(t)
	s := createSlot(t, slots, "Hyrox Individual", "09:00", 2)
	if res, err := regs.Book(ctx, BookingRecord{SlotID: s.ID, Registrant: person("first")}); err != nil || !res.OK {
		t.Fatalf("seed booking: %+v, %v", res, err)
	}

	start := make(chan struct{})
	codes := make(chan BookCode, 2)
	var wg sync.WaitGroup
	for _, name := range []string{"ana", "bea"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			<-start
			res, err := regs.Book(ctx, BookingRecord{SlotID: s.ID, Registrant: person(name)})
			if err != nil {
				t.Errorf("book %s: %v", name, err)
				return
			}
			codes <- res.Code
		}(name)
	}
	close(start)
	wg.Wait()
	close(codes)
	got := map[BookCode]int{}
	for c := range codes {
		got[c]++
	}
	if got[CodeConfirmed] != 1 || got[CodeSlotFull] != 1 {
		t.Fatalf("codes = %v, want one confirmed and one slot_full", got)
	}
}

func TestBookPairConsumesOneUnit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, slots, regs := openTempStore(t)
	s := createSlot(t, slots, "Hyrox Pareja", "13:00", 1)

	partner := person("bea")
	res, err := regs.Book(ctx, BookingRecord{SlotID: s.ID, Registrant: person("ana"), Partner: &partner})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if res.Code != CodeConfirmed {
		t.Fatalf("code = %q, want confirmed", res.Code)
	}
	list, err := slots.ListByDate(ctx, testDate, "hyrox pareja")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Remaining != 0 || !list[0].Pair {
		t.Fatalf("slots = %+v, want one pair slot with remaining 0", list)
	}
	rows, err := regs.ListByDate(ctx, testDate)
	if err != nil {
		t.Fatalf("list registrations: %v", err)
	}
	if len(rows) != 1 || rows[0].Partner == nil || *rows[0].Partner != partner {
		t.Fatalf("rows = %+v, want partner stored on the same row", rows)
	}
}

func TestBookPairPolicyUnderLock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, slots, regs := openTempStore(t)
	pairSlot := createSlot(t, slots, "Hyrox Pareja", "13:00", 2)
	soloSlot := createSlot(t, slots, "Hyrox Individual", "13:00", 2)
	partner := person("bea")

	tests := []struct {
		name string
		rec  BookingRecord
		want BookCode
	}{
		{name: "pair without partner", rec: BookingRecord{SlotID: pairSlot.ID, Registrant: person("ana")}, want: CodePartnerRequired},
		{name: "solo with partner", rec: BookingRecord{SlotID: soloSlot.ID, Registrant: person("ana"), Partner: &partner}, want: CodePartnerNotAllowed},
		{name: "unknown slot", rec: BookingRecord{SlotID: 9999, Registrant: person("ana")}, want: CodeSlotNotFound},
	}
	for _, tc := range tests {
		res, err := regs.Book(ctx, tc.rec)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if res.OK || res.Code != tc.want {
			t.Fatalf("%s: result = %+v, want %q", tc.name, res, tc.want)
		}
	}
	for _, id := range []int64{pairSlot.ID, soloSlot.ID} {
		if n, _ := regs.CountBySlot(ctx, id); n != 0 {
			t.Fatalf("slot %d rows = %d, want 0", id, n)
		}
	}
}

func TestBookIdempotencyKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, slots, regs := openTempStore(t)
	s := createSlot(t, slots, "Hyrox Individual", "14:00", 5)
	other := createSlot(t, slots, "Hyrox Individual", "15:00", 5)

	rec := BookingRecord{SlotID: s.ID, Registrant: person("ana"), RequestKey: "retry-key-1"}
	first, err := regs.Book(ctx, rec)
	if err != nil || first.Code != CodeConfirmed {
		t.Fatalf("first = %+v, %v", first, err)
	}
	second, err := regs.Book(ctx, rec)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !second.OK || second.Code != CodeReplayed || second.Registration.ID != first.Registration.ID {
		t.Fatalf("second = %+v, want replay of %d", second, first.Registration.ID)
	}
	if n, _ := regs.CountBySlot(ctx, s.ID); n != 1 {
		t.Fatalf("rows = %d, want 1", n)
	}

	moved := rec
	moved.SlotID = other.ID
	conflict, err := regs.Book(ctx, moved)
	if err != nil {
		t.Fatalf("conflict: %v", err)
	}
	if conflict.OK || conflict.Code != CodeKeyConflict {
		t.Fatalf("conflict = %+v, want key_conflict", conflict)
	}
}

func TestBookIdempotencyKeyConcurrent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, slots, regs := openTempStore(t)
	s := createSlot(t, slots, "Hyrox Individual", "16:00", 10)

	start := make(chan struct{})
	ids := make(chan int64, 5)
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res, err := regs.Book(ctx, BookingRecord{SlotID: s.ID, Registrant: person("ana"), RequestKey: "same-key-xyz"})
			if err != nil || !res.OK {
				t.Errorf("book = %+v, %v", res, err)
				return
			}
			ids <- res.Registration.ID
		}()
	}
	close(start)
	wg.Wait()
	close(ids)
	var first int64
	for id := range ids {
		if first == 0 {
			first = id
		}
		if id != first {
			t.Fatalf("registration ids differ: %d vs %d", id, first)
		}
	}
	if n, _ := regs.CountBySlot(ctx, s.ID); n != 1 {
		t.Fatalf("rows = %d, want 1", n)
	}
}

func TestBookCancelledContext(t *testing.T) {
	t.Parallel()
	_, slots, regs := openTempStore(t)
	s := createSlot(t, slots, "Hyrox Individual", "17:00", 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := regs.Book(ctx, BookingRecord{SlotID: s.ID, Registrant: person("ana")}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if n, _ := regs.CountBySlot(context.Background(), s.ID); n != 0 {
		t.Fatalf("rows = %d, want 0", n)
	}
}

func TestSlotReads(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db, slots, regs := openTempStore(t)
	b := createSlot(t, slots, "Hyrox Pareja", "10:00", 2)
	a2 := createSlot(t, slots, "Hyrox Individual", "11:00", 3)
	a1 := createSlot(t, slots, "Hyrox Individual", "09:00", 3)
	if _, err := db.Exec(`INSERT INTO slots (category, event_date, start_time, end_time, capacity) VALUES ('Hyrox Individual', '2026-10-17', '09:00', '09:30', 1)`); err != nil {
		t.Fatalf("seed other day: %v", err)
	}
	if res, err := regs.Book(ctx, BookingRecord{SlotID: a1.ID, Registrant: person("ana")}); err != nil || !res.OK {
		t.Fatalf("book: %+v, %v", res, err)
	}

	dates, err := slots.EventDates(ctx)
	if err != nil {
		t.Fatalf("dates: %v", err)
	}
	if !reflect.DeepEqual(dates, []string{"2026-10-17", testDate}) {
		t.Fatalf("dates = %v", dates)
	}

	first, err := slots.ListByDate(ctx, testDate, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	second, err := slots.ListByDate(ctx, testDate, "")
	if err != nil {
		t.Fatalf("list again: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("repeated reads differ: %+v vs %+v", first, second)
	}
	var order []int64
	for _, s := range first {
		order = append(order, s.ID)
	}
	if !reflect.DeepEqual(order, []int64{a1.ID, a2.ID, b.ID}) {
		t.Fatalf("order = %v, want [%d %d %d]", order, a1.ID, a2.ID, b.ID)
	}
	if first[0].Remaining != 2 || first[1].Remaining != 3 {
		t.Fatalf("remaining = %d/%d, want 2/3", first[0].Remaining, first[1].Remaining)
	}

	cats, err := slots.Categories(ctx, testDate)
	if err != nil {
		t.Fatalf("categories: %v", err)
	}
	want := []model.Category{
		{Name: "Hyrox Individual", Pair: false, Slots: 2, Remaining: 5},
		{Name: "Hyrox Pareja", Pair: true, Slots: 1, Remaining: 2},
	}
	if !reflect.DeepEqual(cats, want) {
		t.Fatalf("categories = %+v, want %+v", cats, want)
	}

	got, err := slots.GetByID(ctx, b.ID)
	if err != nil || *got != b {
		t.Fatalf("GetByID = %+v, %v, want %+v", got, err, b)
	}
	if _, err := slots.GetByID(ctx, 9999); err != ErrSlotNotFound {
		t.Fatalf("GetByID missing err = %v, want ErrSlotNotFound", err)
	}
}

func TestCreateSlotRejectsZeroCapacity(t *testing.T) {
	t.Parallel()
	_, slots, _ := openTempStore(t)
	s := model.Slot{Category: "x", EventDate: testDate, StartTime: "09:00", EndTime: "09:30"}
	if err := slots.Create(context.Background(), &s); err == nil {
		t.Fatal("expected error")
	}
}

func TestRegistrationsListOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, slots, regs := openTempStore(t)
	regs.now = fakeClock(time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC))
	late := createSlot(t, slots, "Hyrox Individual", "11:00", 5)
	early := createSlot(t, slots, "Hyrox Individual", "09:00", 5)
	pair := createSlot(t, slots, "Hyrox Pareja", "08:00", 5)
	partner := person("pat")

	book := func(slotID int64, name string, p *model.Person) {
		t.Helper()
		if res, err := regs.Book(ctx, BookingRecord{SlotID: slotID, Registrant: person(name), Partner: p}); err != nil || !res.OK {
			t.Fatalf("book %s: %+v, %v", name, res, err)
		}
	}
	book(pair.ID, "p1", &partner)
	book(late.ID, "l1", nil)
	book(early.ID, "e1", nil)
	book(early.ID, "e2", nil)

	rows, err := regs.ListByDate(ctx, testDate)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var names []string
	for _, r := range rows {
		names = append(names, r.Registrant.FullName)
	}
	if !reflect.DeepEqual(names, []string{"e1", "e2", "l1", "p1"}) {
		t.Fatalf("order = %v", names)
	}
	if !rows[0].CreatedAt.Before(rows[1].CreatedAt) {
		t.Fatalf("created_at not ascending: %v, %v", rows[0].CreatedAt, rows[1].CreatedAt)
	}
}

func TestScanTime(t *testing.T) {
	t.Parallel()

	want := time.Date(2026, 10, 18, 7, 30, 0, 5000, time.UTC)
	inputs := []any{
		want,
		"2026-10-18 07:30:00.000005",
		[]byte("2026-10-18T07:30:00.000005Z"),
		"2026-10-18 09:30:00.000005+02:00",
	}
	for _, in := range inputs {
		var s scanTime
		if err := s.Scan(in); err != nil {
			t.Fatalf("Scan(%v): %v", in, err)
		}
		if !s.T.Equal(want) {
			t.Fatalf("Scan(%v) = %v, want %v", in, s.T, want)
		}
	}
	var s scanTime
	if err := s.Scan("yesterday"); err == nil {
		t.Fatal("expected parse error")
	}
	if err := s.Scan(3.5); err == nil {
		t.Fatal("expected type error")
	}
}
