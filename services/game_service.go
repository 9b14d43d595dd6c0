package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"trivianight/models"

	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type GameService struct {
	db      *gorm.DB
	redis   *redis.Client
	engine  *AssignmentEngine
	tracker *UsageTracker
	catalog *CatalogService
}

func NewGameService(db *gorm.DB, redisClient *redis.Client, engine *AssignmentEngine, tracker *UsageTracker, catalog *CatalogService) *GameService {
	return &GameService{
		db:      db,
		redis:   redisClient,
		engine:  engine,
		tracker: tracker,
		catalog: catalog,
	}
}

type StartGameRequest struct {
	CategorySlugs []string      `json:"category_slugs" binding:"required,min=1,max=6"`
	Teams         []TeamRequest `json:"teams" binding:"required,min=2,max=4"`
}

type TeamRequest struct {
	Name string `json:"name" binding:"required"`
}

type MarkQuestionUsedRequest struct {
	SlotKey      string `json:"slot_key"`
	QuestionID   string `json:"question_id"`
	CategorySlug string `json:"category_slug"`
	TeamID       uint   `json:"team_id" binding:"required"`
	Correct      bool   `json:"correct"`
	ScoreDelta   int    `json:"score_delta"`
}

// GameState is the live view of one game, kept as a redis blob so a second
// device on the same account can resume or watch mid-game.
type GameState struct {
	GameID      uint       `json:"game_id"`
	Pin         string     `json:"pin"`
	Status      string     `json:"status"`
	CurrentTurn int        `json:"current_turn"`
	Teams       []GameTeam `json:"teams"`
	UsedSlots   []string   `json:"used_slots"`
}

type GameTeam struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// StartGame reserves questions for every board slot and persists the game
// record. The assignment is fixed here for the life of the game: resuming
// or restarting reproduces the identical question set.
func (s *GameService) StartGame(ctx context.Context, userID uint, req *StartGameRequest) (*models.Game, []Shortage, error) {
	catalog, err := s.catalog.GetCatalog(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	result, err := s.engine.Assign(ctx, userID, req.CategorySlugs, catalog)
	if err != nil {
		return nil, nil, err
	}

	assignmentJSON, err := json.Marshal(result.Assignment)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal assignment: %w", err)
	}
	selectedJSON, err := json.Marshal(req.CategorySlugs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal selected categories: %w", err)
	}

	now := time.Now()
	game := models.Game{
		UserID:             userID,
		Pin:                s.generatePin(),
		Status:             "active",
		SelectedCategories: datatypes.JSON(selectedJSON),
		Assignment:         datatypes.JSON(assignmentJSON),
		UsedQuestions:      datatypes.JSON([]byte("[]")),
		StartedAt:          &now,
	}

	tx := s.db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Create(&game).Error; err != nil {
		tx.Rollback()
		return nil, nil, err
	}
	for _, teamReq := range req.Teams {
		team := models.Team{
			GameID:    game.ID,
			Name:      teamReq.Name,
			Score:     0,
			PerksUsed: datatypes.JSON([]byte("{}")),
		}
		if err := tx.Create(&team).Error; err != nil {
			tx.Rollback()
			return nil, nil, err
		}
		game.Teams = append(game.Teams, team)
	}
	if err := tx.Commit().Error; err != nil {
		return nil, nil, err
	}

	if err := s.storeGameState(game.Pin, stateFromGame(&game)); err != nil {
		log.Printf("Failed to store game state in redis: %v", err)
	}

	log.Printf("Started game %s for user %d: %d slots assigned, %d shortages", game.Pin, userID, len(result.Assignment), len(result.Shortages))
	return &game, result.Shortages, nil
}

func (s *GameService) ListGames(ctx context.Context, userID uint) ([]models.Game, error) {
	var games []models.Game
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).
		Preload("Teams").
		Order("created_at DESC").
		Find(&games).Error
	return games, err
}

func (s *GameService) GetGameByPin(ctx context.Context, pin string) (*models.Game, error) {
	var game models.Game
	err := s.db.WithContext(ctx).Where("LOWER(pin) = ?", strings.ToLower(pin)).
		Preload("Teams").
		First(&game).Error
	if err != nil {
		return nil, errors.New("game not found")
	}
	return &game, nil
}

// MarkQuestionUsed records a question coming off the board: appends it to
// the game's used ledger, applies the score delta to the answering team,
// and advances the turn. A question outside the stored assignment (the
// shortage fallback path) additionally increments its usage count, since
// it was never reserved at game start.
func (s *GameService) MarkQuestionUsed(ctx context.Context, pin string, userID uint, req *MarkQuestionUsedRequest, hub *Hub) (*models.Game, error) {
	game, err := s.getOwnedGame(ctx, pin, userID)
	if err != nil {
		return nil, err
	}
	if game.Status != "active" {
		return nil, errors.New("game is not active")
	}

	used, err := game.UsedQuestionList()
	if err != nil {
		return nil, fmt.Errorf("failed to read used-question ledger: %w", err)
	}

	entry, fromBoard, err := s.resolveUsedEntry(ctx, game, req)
	if err != nil {
		return nil, err
	}
	for _, u := range used {
		if u.SlotKey != "" && u.SlotKey == entry.SlotKey {
			return nil, errors.New("question already used")
		}
	}
	used = append(used, *entry)

	usedJSON, err := json.Marshal(used)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal used-question ledger: %w", err)
	}

	teamCount := len(game.Teams)
	nextTurn := game.CurrentTurn
	if teamCount > 0 {
		nextTurn = (game.CurrentTurn + 1) % teamCount
	}

	tx := s.db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Model(game).Updates(map[string]interface{}{
		"used_questions": datatypes.JSON(usedJSON),
		"current_turn":   nextTurn,
	}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if req.ScoreDelta != 0 {
		if err := tx.Model(&models.Team{}).
			Where("id = ? AND game_id = ?", req.TeamID, game.ID).
			Update("score", gorm.Expr("score + ?", req.ScoreDelta)).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	if !fromBoard {
		// Off-board questions were never reserved, so their usage count
		// is bumped now.
		question, qErr := s.findCatalogQuestion(ctx, req.QuestionID)
		if qErr != nil {
			log.Printf("Off-board question %s not in catalog, tracking by ledger fields: %v", req.QuestionID, qErr)
			question = &models.Question{PublicID: entry.QuestionID, Text: entry.Text, Answer: entry.Answer}
		}
		if err := s.tracker.RecordUse(ctx, userID, entry.CategorySlug, question); err != nil {
			log.Printf("Failed to record off-board question use for user %d: %v", userID, err)
		}
	}

	updated, err := s.GetGameByPin(ctx, game.Pin)
	if err != nil {
		return nil, err
	}

	if err := s.storeGameState(updated.Pin, stateFromGame(updated)); err != nil {
		log.Printf("Failed to update game state in redis: %v", err)
	}
	if hub != nil {
		hub.BroadcastToUser(userID, "game_updated", map[string]interface{}{
			"pin":          updated.Pin,
			"slot_key":     entry.SlotKey,
			"current_turn": updated.CurrentTurn,
		})
	}

	return updated, nil
}

func (s *GameService) resolveUsedEntry(ctx context.Context, game *models.Game, req *MarkQuestionUsedRequest) (*models.UsedQuestion, bool, error) {
	now := time.Now()

	if req.SlotKey != "" {
		assignment, err := game.AssignmentMap()
		if err != nil {
			return nil, false, fmt.Errorf("failed to read assignment: %w", err)
		}
		slot, ok := assignment[req.SlotKey]
		if !ok {
			return nil, false, errors.New("slot not found in this game's assignment")
		}
		return &models.UsedQuestion{
			SlotKey:      req.SlotKey,
			QuestionID:   slot.QuestionID,
			TrackingKey:  slot.TrackingKey,
			CategorySlug: slot.CategorySlug,
			Text:         slot.Text,
			Answer:       slot.Answer,
			TeamID:       req.TeamID,
			Correct:      req.Correct,
			ScoreDelta:   req.ScoreDelta,
			UsedAt:       now,
		}, true, nil
	}

	if req.QuestionID == "" || req.CategorySlug == "" {
		return nil, false, errors.New("either slot_key or question_id with category_slug is required")
	}

	question, err := s.findCatalogQuestion(ctx, req.QuestionID)
	if err != nil {
		return nil, false, errors.New("question not found")
	}
	return &models.UsedQuestion{
		QuestionID:   question.PublicID,
		TrackingKey:  ResolveKey(req.CategorySlug, question),
		CategorySlug: req.CategorySlug,
		Text:         question.Text,
		Answer:       question.Answer,
		TeamID:       req.TeamID,
		Correct:      req.Correct,
		ScoreDelta:   req.ScoreDelta,
		UsedAt:       now,
	}, false, nil
}

func (s *GameService) findCatalogQuestion(ctx context.Context, publicID string) (*models.Question, error) {
	var question models.Question
	err := s.db.WithContext(ctx).Where("public_id = ?", publicID).First(&question).Error
	if err != nil {
		return nil, err
	}
	return &question, nil
}

func (s *GameService) FinishGame(ctx context.Context, pin string, userID uint, hub *Hub) (*models.Game, error) {
	game, err := s.getOwnedGame(ctx, pin, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := s.db.WithContext(ctx).Model(game).Updates(map[string]interface{}{
		"status":   "finished",
		"ended_at": &now,
	}).Error; err != nil {
		return nil, err
	}

	updated, err := s.GetGameByPin(ctx, game.Pin)
	if err != nil {
		return nil, err
	}

	if err := s.storeGameState(updated.Pin, stateFromGame(updated)); err != nil {
		log.Printf("Failed to store final game state: %v", err)
	}
	if hub != nil {
		hub.BroadcastToUser(userID, "game_updated", map[string]interface{}{
			"pin":    updated.Pin,
			"status": updated.Status,
		})
	}

	log.Printf("Finished game %s for user %d", updated.Pin, userID)
	return updated, nil
}

// DeleteGame removes a game record and rebuilds the usage record from the
// surviving games, so the deleted game's questions return to the pool.
// Replay, not decrement: the same logical question can appear in more than
// one record, so subtraction is never safe.
func (s *GameService) DeleteGame(ctx context.Context, userID uint, gameID uint) error {
	var game models.Game
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", gameID, userID).First(&game).Error; err != nil {
		return errors.New("game not found")
	}

	if err := s.db.WithContext(ctx).Delete(&game).Error; err != nil {
		return err
	}
	if err := s.redis.Del(ctx, "game:"+strings.ToLower(game.Pin)).Err(); err != nil {
		log.Printf("Failed to delete redis state for game %s: %v", game.Pin, err)
	}

	remaining, err := s.ListGames(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to list remaining games for user %d: %w", userID, err)
	}
	if err := s.tracker.SyncFromHistory(ctx, userID, remaining, true); err != nil {
		return err
	}

	log.Printf("Deleted game %d for user %d, usage rebuilt from %d remaining games", gameID, userID, len(remaining))
	return nil
}

// GetCurrentGameState returns the live state, preferring redis and falling
// back to a rebuild from the database.
func (s *GameService) GetCurrentGameState(ctx context.Context, pin string) (*GameState, error) {
	normalizedPin := strings.ToLower(pin)

	if state := s.getGameState(normalizedPin); state != nil {
		return state, nil
	}

	game, err := s.GetGameByPin(ctx, normalizedPin)
	if err != nil {
		return nil, err
	}

	state := stateFromGame(game)
	if err := s.storeGameState(normalizedPin, state); err != nil {
		log.Printf("Failed to store rebuilt game state: %v", err)
	}
	return state, nil
}

func (s *GameService) getOwnedGame(ctx context.Context, pin string, userID uint) (*models.Game, error) {
	var game models.Game
	err := s.db.WithContext(ctx).
		Where("LOWER(pin) = ? AND user_id = ?", strings.ToLower(pin), userID).
		Preload("Teams").
		First(&game).Error
	if err != nil {
		return nil, errors.New("game not found")
	}
	return &game, nil
}

func stateFromGame(game *models.Game) *GameState {
	state := &GameState{
		GameID:      game.ID,
		Pin:         strings.ToLower(game.Pin),
		Status:      game.Status,
		CurrentTurn: game.CurrentTurn,
		Teams:       []GameTeam{},
		UsedSlots:   []string{},
	}
	for _, team := range game.Teams {
		state.Teams = append(state.Teams, GameTeam{
			ID:    team.ID,
			Name:  team.Name,
			Score: team.Score,
		})
	}
	if used, err := game.UsedQuestionList(); err == nil {
		for _, entry := range used {
			if entry.SlotKey != "" {
				state.UsedSlots = append(state.UsedSlots, entry.SlotKey)
			}
		}
	}
	return state
}

func (s *GameService) generatePin() string {
	bytes := make([]byte, 3)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)[:6]
}

func (s *GameService) storeGameState(pin string, state *GameState) error {
	normalizedPin := strings.ToLower(pin)

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal game state: %v", err)
	}

	// Live state only; the durable record lives in the database.
	err = s.redis.Set(context.Background(), "game:"+normalizedPin, data, 24*time.Hour).Err()
	if err != nil {
		return fmt.Errorf("failed to store in redis: %v", err)
	}

	return nil
}

func (s *GameService) getGameState(pin string) *GameState {
	normalizedPin := strings.ToLower(pin)

	data, err := s.redis.Get(context.Background(), "game:"+normalizedPin).Result()
	if err != nil {
		if err != redis.Nil {
			log.Printf("Redis error getting game state for %s: %v", normalizedPin, err)
		}
		return nil
	}

	var state GameState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		log.Printf("Failed to unmarshal game state for %s: %v", normalizedPin, err)
		return nil
	}
	return &state
}
