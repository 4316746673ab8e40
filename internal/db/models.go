package db

import (
	"fmt"
	"time"
)

// User represents a Steam account known to the server.
type User struct {
	SteamID     string    `json:"steam_id" db:"steam_id"`
	DisplayName string    `json:"display_name" db:"display_name"`
	AvatarURL   *string   `json:"avatar_url" db:"avatar_url"` // nullable
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	LastSeen    time.Time `json:"last_seen" db:"last_seen"`
}

// Game is a game in a user's library with its tracked achievement totals.
// AchievementsTotal and AchievementsUnlocked are nil until the first scrape;
// a total of 0 means the game has no achievements.
type Game struct {
	AppID                 int64      `json:"appid" db:"appid"`
	Name                  string     `json:"name" db:"name"`
	PlaytimeForever       int        `json:"playtime_forever" db:"playtime_forever"` // minutes
	RtimeLastPlayed       *int64     `json:"rtime_last_played" db:"rtime_last_played"`
	ImgIconURL            *string    `json:"img_icon_url" db:"img_icon_url"`
	AddedAt               time.Time  `json:"added_at" db:"added_at"`
	AchievementsTotal     *int       `json:"achievements_total" db:"achievements_total"`
	AchievementsUnlocked  *int       `json:"achievements_unlocked" db:"achievements_unlocked"`
	LastAchievementScrape *time.Time `json:"last_achievement_scrape" db:"last_achievement_scrape"`
}

// CompletionPercent returns unlocked/total*100, or false when the game has no
// achievements or was never scraped.
func (g Game) CompletionPercent() (float64, bool) {
	if g.AchievementsTotal == nil || g.AchievementsUnlocked == nil || *g.AchievementsTotal <= 0 {
		return 0, false
	}
	return float64(*g.AchievementsUnlocked) / float64(*g.AchievementsTotal) * 100, true
}

// AchievementsDisplay formats the achievement column for tables.
func (g Game) AchievementsDisplay() string {
	switch {
	case g.AchievementsTotal == nil || g.AchievementsUnlocked == nil:
		return "-"
	case *g.AchievementsTotal == 0:
		return "N/A"
	default:
		return fmt.Sprintf("%d / %d", *g.AchievementsUnlocked, *g.AchievementsTotal)
	}
}

// Scraped reports whether the achievement scrape has ever succeeded for the game.
func (g Game) Scraped() bool {
	return g.LastAchievementScrape != nil
}

// AchievementState is a user's unlock state for one achievement.
type AchievementState struct {
	AppID      int64      `json:"appid" db:"appid"`
	APIName    string     `json:"apiname" db:"apiname"`
	Achieved   bool       `json:"achieved" db:"achieved"`
	UnlockTime *time.Time `json:"unlocktime" db:"unlocktime"` // nil while locked
}

// SchemaEntry is publisher reference data for one achievement, shared by all users.
type SchemaEntry struct {
	AppID       int64   `json:"appid" db:"appid"`
	APIName     string  `json:"apiname" db:"apiname"`
	DisplayName string  `json:"display_name" db:"display_name"`
	Description *string `json:"description" db:"description"`
	Icon        string  `json:"icon" db:"icon"`
	IconGray    string  `json:"icon_gray" db:"icon_gray"`
}

// GameAchievement joins a user's unlock state with the schema entry.
type GameAchievement struct {
	AppID       int64      `json:"appid" db:"appid"`
	APIName     string     `json:"apiname" db:"apiname"`
	Name        string     `json:"name" db:"name"`
	Description *string    `json:"description" db:"description"`
	Icon        string     `json:"icon" db:"icon"`
	IconGray    string     `json:"icon_gray" db:"icon_gray"`
	Achieved    bool       `json:"achieved" db:"achieved"`
	UnlockTime  *time.Time `json:"unlocktime" db:"unlocktime"`
}

// RunHistory is a library-size snapshot taken once per sync run.
type RunHistory struct {
	ID            int64     `json:"id" db:"id"`
	RunAt         time.Time `json:"run_at" db:"run_at"`
	TotalGames    int       `json:"total_games" db:"total_games"`
	UnplayedGames int       `json:"unplayed_games" db:"unplayed_games"`
}

// AchievementHistory is an aggregate achievement snapshot taken after a scrape.
type AchievementHistory struct {
	ID                    int64     `json:"id" db:"id"`
	RecordedAt            time.Time `json:"recorded_at" db:"recorded_at"`
	TotalAchievements     int       `json:"total_achievements" db:"total_achievements"`
	UnlockedAchievements  int       `json:"unlocked_achievements" db:"unlocked_achievements"`
	GamesWithAchievements int       `json:"games_with_achievements" db:"games_with_achievements"`
	AvgCompletionPercent  float64   `json:"avg_completion_percent" db:"avg_completion_percent"`
}

// FirstPlay records when a game was first played.
type FirstPlay struct {
	AppID       int64     `json:"appid" db:"appid"`
	GameName    string    `json:"game_name" db:"game_name"`
	PlayedAt    time.Time `json:"played_at" db:"played_at"`
	GameIconURL *string   `json:"game_icon_url" db:"game_icon_url"`
}

// GameRating is a user's 1-5 star rating of a game.
type GameRating struct {
	ID        int64     `json:"id" db:"id"`
	SteamID   string    `json:"steam_id" db:"steam_id"`
	AppID     int64     `json:"appid" db:"appid" validate:"gt=0"`
	Rating    int       `json:"rating" db:"rating" validate:"min=1,max=5"`
	Comment   *string   `json:"comment" db:"comment" validate:"omitempty,max=2000"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// AchievementTip is community advice for unlocking one achievement.
type AchievementTip struct {
	ID         int64     `json:"id" db:"id"`
	SteamID    string    `json:"steam_id" db:"steam_id"`
	AppID      int64     `json:"appid" db:"appid" validate:"gt=0"`
	APIName    string    `json:"apiname" db:"apiname" validate:"required"`
	Difficulty int       `json:"difficulty" db:"difficulty" validate:"min=1,max=5"`
	Tip        string    `json:"tip" db:"tip" validate:"required,max=4000"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// CommunityRating aggregates every user's rating of one game.
type CommunityRating struct {
	AppID       int64        `json:"appid"`
	AvgRating   float64      `json:"avg_rating"`
	RatingCount int          `json:"rating_count"`
	Ratings     []GameRating `json:"ratings"`
}

// NewCommunityRating averages ratings for a game. The average is 0 when
// nobody has rated it.
func NewCommunityRating(appID int64, ratings []GameRating) CommunityRating {
	cr := CommunityRating{AppID: appID, RatingCount: len(ratings), Ratings: ratings}
	if cr.Ratings == nil {
		cr.Ratings = []GameRating{}
	}
	if len(ratings) == 0 {
		return cr
	}
	var sum int
	for _, r := range ratings {
		sum += r.Rating
	}
	cr.AvgRating = float64(sum) / float64(len(ratings))
	return cr
}
