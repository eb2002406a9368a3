package memory

import (
	"fmt"
	"math/rand"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrave1/CoachSpeak/internal/domain"
)

func participant(id string, role domain.Role) domain.Participant {
	return domain.Participant{
		ID:              id,
		DisplayName:     id,
		Role:            role,
		ParticipantType: domain.ParticipantHuman,
		ConnectedAt:     time.Now(),
	}
}

func ids(ps []domain.Participant) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.ID)
	}
	return out
}

func TestJoinReturnsExistingPeersInJoinOrder(t *testing.T) {
	reg := NewRoomRegistry(3)

	peers, err := reg.Join("r1", participant("client", domain.RoleClient))
	require.NoError(t, err)
	assert.Empty(t, peers)

	peers, err = reg.Join("r1", participant("coach", domain.RoleCoach))
	require.NoError(t, err)
	assert.Equal(t, []string{"client"}, ids(peers))

	peers, err = reg.Join("r1", participant("agent-r1", domain.RoleAgent))
	require.NoError(t, err)
	assert.Equal(t, []string{"client", "coach"}, ids(peers))

	assert.Equal(t, []string{"client", "coach", "agent-r1"}, ids(reg.Members("r1")))

	roomID, ok := reg.RoomOf("coach")
	require.True(t, ok)
	assert.Equal(t, "r1", roomID)
}

func TestJoinRoomFull(t *testing.T) {
	reg := NewRoomRegistry(3)
	for _, id := range []string{"a", "b", "c"} {
		_, err := reg.Join("r1", participant(id, domain.RoleClient))
		require.NoError(t, err)
	}

	_, err := reg.Join("r1", participant("d", domain.RoleClient))
	require.ErrorIs(t, err, domain.ErrRoomFull)

	assert.Equal(t, []string{"a", "b", "c"}, ids(reg.Members("r1")))
	_, ok := reg.RoomOf("d")
	assert.False(t, ok)

	// переподключение существующего участника не упирается в лимит
	peers, err := reg.Join("r1", participant("b", domain.RoleClient))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, ids(peers))
	assert.Equal(t, []string{"a", "b", "c"}, ids(reg.Members("r1")))
}

func TestLeaveDeletesEmptyRoom(t *testing.T) {
	reg := NewRoomRegistry(3)
	_, _ = reg.Join("r1", participant("a", domain.RoleClient))
	_, _ = reg.Join("r1", participant("b", domain.RoleCoach))

	res, ok := reg.Leave("r1", "a")
	require.True(t, ok)
	assert.Equal(t, "a", res.Removed.ID)
	assert.Equal(t, []string{"b"}, ids(res.Remaining))
	assert.False(t, res.Closed)

	_, ok = reg.Leave("r1", "a")
	assert.False(t, ok)

	res, ok = reg.Leave("r1", "b")
	require.True(t, ok)
	assert.Empty(t, res.Remaining)
	assert.True(t, res.Closed)
	assert.Nil(t, reg.Members("r1"))

	_, ok = reg.Leave("missing", "b")
	assert.False(t, ok)

	// новая комната с тем же id начинается с чистого листа
	peers, err := reg.Join("r1", participant("c", domain.RoleClient))
	require.NoError(t, err)
	assert.Empty(t, peers)
}

func TestLeaveLastHumanEvictsAgent(t *testing.T) {
	reg := NewRoomRegistry(3)
	agent := domain.Participant{ID: "agent-r1", Role: domain.RoleAgent, ParticipantType: domain.ParticipantAI}

	_, _ = reg.Join("r1", participant("coach", domain.RoleCoach))
	_, _ = reg.Join("r1", participant("client", domain.RoleClient))
	_, _ = reg.Join("r1", agent)

	res, ok := reg.Leave("r1", "client")
	require.True(t, ok)
	assert.False(t, res.Closed)
	assert.Empty(t, res.Evicted)
	assert.Equal(t, []string{"coach", "agent-r1"}, ids(res.Remaining))

	res, ok = reg.Leave("r1", "coach")
	require.True(t, ok)
	assert.True(t, res.Closed)
	assert.Empty(t, res.Remaining)
	assert.Equal(t, []string{"agent-r1"}, ids(res.Evicted))

	assert.Nil(t, reg.Members("r1"))
	_, ok = reg.RoomOf("agent-r1")
	assert.False(t, ok)

	// человек после закрытия попадает в новую комнату без агента
	peers, err := reg.Join("r1", participant("client", domain.RoleClient))
	require.NoError(t, err)
	assert.Empty(t, peers)
}

func TestMember(t *testing.T) {
	reg := NewRoomRegistry(3)
	_, _ = reg.Join("r1", participant("a", domain.RoleCoach))

	p, ok := reg.Member("r1", "a")
	require.True(t, ok)
	assert.Equal(t, domain.RoleCoach, p.Role)

	_, ok = reg.Member("r1", "b")
	assert.False(t, ok)
	_, ok = reg.Member("r2", "a")
	assert.False(t, ok)
}

// Список peers у новичка всегда совпадает с теми, кто был в комнате в момент join
func TestPeersMatchModel(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	reg := NewRoomRegistry(3)
	var model []string

	for i := 0; i < 2000; i++ {
		id := fmt.Sprintf("p%d", rnd.Intn(5))

		if rnd.Intn(2) == 0 {
			peers, err := reg.Join("r", participant(id, domain.RoleClient))
			inRoom := slices.Contains(model, id)

			if !inRoom && len(model) >= 3 {
				require.ErrorIs(t, err, domain.ErrRoomFull)
				continue
			}

			require.NoError(t, err)

			expected := slices.DeleteFunc(slices.Clone(model), func(s string) bool { return s == id })
			require.True(t, slices.Equal(expected, ids(peers)), "expected %v, got %v", expected, ids(peers))

			if !inRoom {
				model = append(model, id)
			}
			continue
		}

		_, ok := reg.Leave("r", id)
		idx := slices.Index(model, id)
		require.Equal(t, idx >= 0, ok)
		if idx >= 0 {
			model = slices.Delete(model, idx, idx+1)
		}
	}
}

func TestConcurrentRoomsAreIndependent(t *testing.T) {
	reg := NewRoomRegistry(3)

	var wg sync.WaitGroup
	for r := 0; r < 20; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			roomID := fmt.Sprintf("room-%d", r)

			for i := 0; i < 200; i++ {
				id := fmt.Sprintf("%s-p%d", roomID, i%4)
				if _, err := reg.Join(roomID, participant(id, domain.RoleClient)); err != nil {
					assert.ErrorIs(t, err, domain.ErrRoomFull)
				}
				if i%3 == 0 {
					reg.Leave(roomID, id)
				}
			}
		}(r)
	}
	wg.Wait()

	for r := 0; r < 20; r++ {
		members := reg.Members(fmt.Sprintf("room-%d", r))
		assert.LessOrEqual(t, len(members), 3)
	}
}

func TestConcurrentJoinLeaveSameRoomNeverExceedsCapacity(t *testing.T) {
	reg := NewRoomRegistry(2)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			id := fmt.Sprintf("p%d", w)
			for i := 0; i < 500; i++ {
				if _, err := reg.Join("shared", participant(id, domain.RoleClient)); err == nil {
					assert.LessOrEqual(t, len(reg.Members("shared")), 2)
					reg.Leave("shared", id)
				}
			}
		}(w)
	}
	wg.Wait()

	assert.Empty(t, reg.Members("shared"))
}
