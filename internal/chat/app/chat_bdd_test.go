package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"chat_presence_service/internal/chat/domain"
	"chat_presence_service/internal/chat/presence"
	errprocess "chat_presence_service/pkg/err"

	"github.com/cucumber/godog"
	"github.com/google/uuid"
)

// chatScenario state of one scenario
type chatScenario struct {
	t       *testing.T
	h       *harness
	rooms   []*domain.Room
	devices map[string]*device
	lastMsg *domain.Message
	lastErr error
	limited int
}

type device struct {
	conn *presence.Connection
	tr   *recordingTransport
	seen int
}

func (s *chatScenario) room() (*domain.Room, error) {
	if len(s.rooms) == 0 {
		return nil, fmt.Errorf("no room created")
	}
	return s.rooms[len(s.rooms)-1], nil
}

func (s *chatScenario) allowPerMinute(n int) error {
	s.h = newHarness(s.t, n)
	return nil
}

func (s *chatScenario) createPrivate(a, b string) error {
	room, err := s.h.roomUC.CreatePrivate(s.h.ctx, a, b)
	if err != nil {
		return err
	}
	s.rooms = append(s.rooms, room)
	return nil
}

func (s *chatScenario) sameRoom() error {
	if len(s.rooms) != 2 || s.rooms[0].ID != s.rooms[1].ID {
		return fmt.Errorf("expected one room, got %d rooms", len(s.rooms))
	}
	return nil
}

func (s *chatScenario) sendAs(user, content, clientID, originConn string) error {
	room, err := s.room()
	if err != nil {
		return err
	}
	s.lastMsg, s.lastErr = s.h.msgUC.Send(s.h.ctx, domain.SendMessage{
		RoomID:          room.ID,
		SenderID:        user,
		ClientMessageID: clientID,
		Content:         content,
		OriginConnID:    originConn,
	})
	return nil
}

func (s *chatScenario) send(user, content string) error {
	return s.sendAs(user, content, uuid.New().String(), "")
}

func (s *chatScenario) sendFrom(user, dev, content string) error {
	d, ok := s.devices[user+"/"+dev]
	if !ok {
		return fmt.Errorf("%s has no %s online", user, dev)
	}
	if err := s.sendAs(user, content, "live-"+dev, d.conn.ID); err != nil {
		return err
	}
	return s.lastErr
}

func (s *chatScenario) sendRepeated(user, clientID, content string, n int) error {
	for i := 0; i < n; i++ {
		if err := s.sendAs(user, content, clientID, ""); err != nil {
			return err
		}
		if s.lastErr != nil {
			return s.lastErr
		}
	}
	return nil
}

func (s *chatScenario) messageCount(n int) error {
	room, err := s.room()
	if err != nil {
		return err
	}
	seq, err := s.h.messages.LatestSeq(s.h.ctx, room.ID)
	if err != nil {
		return err
	}
	if seq != int64(n) {
		return fmt.Errorf("expected %d messages, got %d", n, seq)
	}
	return nil
}

func (s *chatScenario) historyContains(user, content string) error {
	room, err := s.room()
	if err != nil {
		return err
	}
	msgs, err := s.h.msgUC.History(s.h.ctx, room.ID, user, domain.Page{})
	if err != nil {
		return err
	}
	for _, m := range msgs {
		if m.Content == content {
			return nil
		}
	}
	return fmt.Errorf("%q not in history of %s", content, user)
}

func (s *chatScenario) pushes(user string, n int) error {
	if got := s.h.pushedTo(user); got != n {
		return fmt.Errorf("expected %d pushes to %s, got %d", n, user, got)
	}
	return nil
}

func (s *chatScenario) unread(user string, n int) error {
	summary, err := s.h.msgUC.UnreadCount(s.h.ctx, user)
	if err != nil {
		return err
	}
	if summary.Total != int64(n) {
		return fmt.Errorf("expected %d unread, got %d", n, summary.Total)
	}
	return nil
}

func (s *chatScenario) online(user, dev string) error {
	c, tr := s.h.connect(s.t, user)
	s.devices[user+"/"+dev] = &device{conn: c, tr: tr}
	return nil
}

// waitFor poll the device until cond holds or a second passes
func (s *chatScenario) waitFor(user, dev string, cond func(d *device) bool) error {
	d, ok := s.devices[user+"/"+dev]
	if !ok {
		return fmt.Errorf("%s has no %s online", user, dev)
	}
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond(d) {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("%s/%s: condition not met", user, dev)
}

func (s *chatScenario) receivesLive(user, dev, content string) error {
	return s.waitFor(user, dev, func(d *device) bool {
		for _, ev := range d.tr.events(domain.EventMessageCreated) {
			var m domain.Message
			if json.Unmarshal(ev.Payload, &m) == nil && m.Content == content {
				return true
			}
		}
		return false
	})
}

func (s *chatScenario) receivesNothing(user, dev string) error {
	d, ok := s.devices[user+"/"+dev]
	if !ok {
		return fmt.Errorf("%s has no %s online", user, dev)
	}
	time.Sleep(50 * time.Millisecond)
	if n := len(d.tr.events(domain.EventMessageCreated)); n > 0 {
		return fmt.Errorf("%s/%s received %d messages", user, dev, n)
	}
	return nil
}

func (s *chatScenario) readLatest(user string) error {
	room, err := s.room()
	if err != nil {
		return err
	}
	if s.lastMsg == nil {
		return fmt.Errorf("no message sent")
	}
	_, err = s.h.msgUC.MarkRead(s.h.ctx, room.ID, user, []string{s.lastMsg.ID})
	return err
}

func (s *chatScenario) receivesReceipt(user, dev string) error {
	return s.waitFor(user, dev, func(d *device) bool {
		return len(d.tr.events(domain.EventReadReceipt)) > 0
	})
}

func (s *chatScenario) burst(user string, n int) error {
	for i := 0; i < n; i++ {
		if err := s.send(user, fmt.Sprintf("msg %d", i)); err != nil {
			return err
		}
		switch {
		case errprocess.IsKind(s.lastErr, errprocess.RateLimited):
			s.limited++
		case s.lastErr != nil:
			return s.lastErr
		}
	}
	return nil
}

func (s *chatScenario) limitedCount(n int) error {
	if s.limited != n {
		return fmt.Errorf("expected %d rate limited, got %d", n, s.limited)
	}
	return nil
}

func (s *chatScenario) expectError(kind string) error {
	if s.lastErr == nil {
		return fmt.Errorf("expected %s error, got none", kind)
	}
	if got := errprocess.KindOf(s.lastErr); string(got) != kind {
		return fmt.Errorf("expected %s error, got %s (%v)", kind, got, s.lastErr)
	}
	return nil
}

func (s *chatScenario) expectNoError() error {
	return s.lastErr
}

func (s *chatScenario) createGroup(creator, name, members string) error {
	room, err := s.h.roomUC.CreateGroup(s.h.ctx, GroupInput{
		CreatorID: creator,
		Name:      name,
		MemberIDs: strings.Split(members, ","),
	})
	if err != nil {
		return err
	}
	s.rooms = append(s.rooms, room)
	return nil
}

func (s *chatScenario) setRole(actor, user, role string) error {
	room, err := s.room()
	if err != nil {
		return err
	}
	return s.h.roomUC.UpdateParticipantRole(s.h.ctx, room.ID, actor, user, domain.Role(role))
}

func (s *chatScenario) remove(actor, user string) error {
	room, err := s.room()
	if err != nil {
		return err
	}
	s.lastErr = s.h.roomUC.RemoveParticipant(s.h.ctx, room.ID, actor, user)
	return nil
}

func initializeChatScenario(t *testing.T) func(*godog.ScenarioContext) {
	return func(ctx *godog.ScenarioContext) {
		s := &chatScenario{t: t}
		ctx.Before(func(c context.Context, sc *godog.Scenario) (context.Context, error) {
			*s = chatScenario{t: t, devices: map[string]*device{}}
			return c, nil
		})

		ctx.Step(`^聊天服務每分鐘允許 (\d+) 則訊息$`, s.allowPerMinute)
		ctx.Step(`^"([^"]*)" 與 "([^"]*)" 建立私人聊天$`, s.createPrivate)
		ctx.Step(`^兩次應取得同一間聊天室$`, s.sameRoom)
		ctx.Step(`^"([^"]*)" 發送訊息 "([^"]*)"$`, s.send)
		ctx.Step(`^"([^"]*)" 從 "([^"]*)" 發送訊息 "([^"]*)"$`, s.sendFrom)
		ctx.Step(`^"([^"]*)" 以 client id "([^"]*)" 發送訊息 "([^"]*)" (\d+) 次$`, s.sendRepeated)
		ctx.Step(`^聊天室應只有 (\d+) 則訊息$`, s.messageCount)
		ctx.Step(`^"([^"]*)" 的歷史訊息應包含 "([^"]*)"$`, s.historyContains)
		ctx.Step(`^"([^"]*)" 應收到 (\d+) 則推播$`, s.pushes)
		ctx.Step(`^"([^"]*)" 的未讀數應為 (\d+)$`, s.unread)
		ctx.Step(`^"([^"]*)" 以 "([^"]*)" 上線$`, s.online)
		ctx.Step(`^"([^"]*)" 的 "([^"]*)" 應即時收到 "([^"]*)"$`, s.receivesLive)
		ctx.Step(`^"([^"]*)" 的 "([^"]*)" 不應收到新訊息$`, s.receivesNothing)
		ctx.Step(`^"([^"]*)" 已讀最新訊息$`, s.readLatest)
		ctx.Step(`^"([^"]*)" 的 "([^"]*)" 應收到已讀回條$`, s.receivesReceipt)
		ctx.Step(`^"([^"]*)" 連續發送 (\d+) 則訊息$`, s.burst)
		ctx.Step(`^應有 (\d+) 則訊息被限流$`, s.limitedCount)
		ctx.Step(`^應回傳錯誤 "([^"]*)"$`, s.expectError)
		ctx.Step(`^不應回傳錯誤$`, s.expectNoError)
		ctx.Step(`^"([^"]*)" 建立群組 "([^"]*)" 成員 "([^"]*)"$`, s.createGroup)
		ctx.Step(`^"([^"]*)" 將 "([^"]*)" 設為 "([^"]*)"$`, s.setRole)
		ctx.Step(`^"([^"]*)" 從群組移除 "([^"]*)"$`, s.remove)
	}
}

func TestChatFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: initializeChatScenario(t),
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
			Strict:   true,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
