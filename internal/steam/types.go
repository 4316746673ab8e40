package steam

// OwnedGame is one entry of IPlayerService/GetOwnedGames.
type OwnedGame struct {
	AppID           int64  `json:"appid"`
	Name            string `json:"name"`
	PlaytimeForever int    `json:"playtime_forever"` // minutes
	RtimeLastPlayed int64  `json:"rtime_last_played"`
	ImgIconURL      string `json:"img_icon_url"`
}

// PlayerAchievement is one entry of ISteamUserStats/GetPlayerAchievements.
type PlayerAchievement struct {
	APIName    string `json:"apiname"`
	Achieved   int    `json:"achieved"` // 0 or 1
	UnlockTime int64  `json:"unlocktime"`
}

// Unlocked reports whether the player has the achievement.
func (a PlayerAchievement) Unlocked() bool {
	return a.Achieved == 1
}

// SchemaAchievement is one achievement definition from ISteamUserStats/GetSchemaForGame.
type SchemaAchievement struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	IconGray    string `json:"icongray"`
	Hidden      int    `json:"hidden"`
}

// ownedGamesResponse is the response from IPlayerService/GetOwnedGames.
type ownedGamesResponse struct {
	Response struct {
		GameCount int         `json:"game_count"`
		Games     []OwnedGame `json:"games"`
	} `json:"response"`
}

// recentlyPlayedResponse is the response from IPlayerService/GetRecentlyPlayedGames.
type recentlyPlayedResponse struct {
	Response struct {
		TotalCount int `json:"total_count"`
		Games      []struct {
			AppID int64  `json:"appid"`
			Name  string `json:"name"`
		} `json:"games"`
	} `json:"response"`
}

// playerAchievementsResponse is the response from ISteamUserStats/GetPlayerAchievements.
// Failures come back as {"playerstats":{"error":"...","success":false}}.
type playerAchievementsResponse struct {
	PlayerStats *struct {
		SteamID      string              `json:"steamID"`
		GameName     string              `json:"gameName"`
		Achievements []PlayerAchievement `json:"achievements"`
		Error        string              `json:"error"`
		Success      bool                `json:"success"`
	} `json:"playerstats"`
}

// schemaResponse is the response from ISteamUserStats/GetSchemaForGame.
type schemaResponse struct {
	Game struct {
		GameName           string `json:"gameName"`
		AvailableGameStats struct {
			Achievements []SchemaAchievement `json:"achievements"`
		} `json:"availableGameStats"`
	} `json:"game"`
}
