package plugins

// signatureTable maps a known server command (already lowercased, without
// its leading slash) to the plugin id it is known to ship with. Built from
// the command lists of the ~40 most common Bukkit/Spigot/Paper plugins
// found in the wild; used both to classify declare_commands literal nodes
// that have no explicit "<plugin>:" namespace prefix, and to interpret raw
// tab-completion suggestions.
var signatureTable = map[string]string{
	// EssentialsX
	"essentials": "essentials", "ess": "essentials", "home": "essentials", "sethome": "essentials",
	"delhome": "essentials", "spawn": "essentials", "setspawn": "essentials", "warp": "essentials",
	"setwarp": "essentials", "delwarp": "essentials", "warps": "essentials", "tpa": "essentials",
	"tpaccept": "essentials", "tpdeny": "essentials", "tpahere": "essentials", "back": "essentials",
	"balance": "essentials", "bal": "essentials", "pay": "essentials", "eco": "essentials",
	"kit": "essentials", "kits": "essentials", "nick": "essentials", "afk": "essentials",
	"msg": "essentials", "r": "essentials", "mail": "essentials", "ignore": "essentials",
	"fly": "essentials", "god": "essentials", "heal": "essentials", "feed": "essentials",
	"gamemode": "essentials", "gm": "essentials", "gmc": "essentials", "gms": "essentials",
	"vanish": "essentials", "realname": "essentials", "seen": "essentials", "whois": "essentials",
	"weather": "essentials", "time": "essentials", "jump": "essentials", "top": "essentials",

	// WorldEdit / FAWE
	"worldedit": "worldedit", "we": "worldedit", "wand": "worldedit", "set": "worldedit",
	"replace": "worldedit", "copy": "worldedit", "paste": "worldedit", "undo": "worldedit",
	"redo": "worldedit", "pos1": "worldedit", "pos2": "worldedit", "expand": "worldedit",
	"contract": "worldedit", "fill": "worldedit", "walls": "worldedit", "outline": "worldedit",
	"fasterasyncworldedit": "fastasyncworldedit", "fawe": "fastasyncworldedit",

	// WorldGuard
	"worldguard": "worldguard", "wg": "worldguard", "region": "worldguard", "rg": "worldguard",
	"stopfire": "worldguard", "stoplag": "worldguard",

	// Vault
	"vault": "vault", "vault-info": "vault",

	// LuckPerms
	"luckperms": "luckperms", "lp": "luckperms", "permission": "luckperms",

	// PlaceholderAPI
	"placeholderapi": "placeholderapi", "papi": "placeholderapi",

	// ProtocolLib / ViaVersion
	"protocollib": "protocollib", "viaversion": "viaversion", "viaver": "viaversion",
	"viabackwards": "viabackwards", "viarewind": "viarewind",

	// CoreProtect
	"coreprotect": "coreprotect", "co": "coreprotect", "core": "coreprotect",

	// Multiverse
	"multiverse": "multiverse-core", "mv": "multiverse-core", "mvtp": "multiverse-core",
	"mvcreate": "multiverse-core", "mvimport": "multiverse-core", "mvconfirm": "multiverse-core",

	// ClearLag
	"clearlag": "clearlag", "lagg": "clearlag",

	// ChestShop
	"chestshop": "chestshop", "cshop": "chestshop",

	// Dynmap
	"dynmap": "dynmap", "dmarker": "dynmap", "dmap": "dynmap",

	// GriefPrevention
	"griefprevention": "griefprevention", "claim": "griefprevention", "trust": "griefprevention",
	"untrust": "griefprevention", "abandonclaim": "griefprevention", "trapped": "griefprevention",
	"claimslist": "griefprevention", "siege": "griefprevention",

	// Residence
	"residence": "residence", "res": "residence",

	// Towny
	"towny": "towny", "town": "towny", "nation": "towny", "plot": "towny", "resident": "towny",

	// Factions
	"factions": "factions", "f": "factions", "faction": "factions",

	// mcMMO
	"mcmmo": "mcmmo", "mcstats": "mcmmo", "mcrank": "mcmmo", "mctop": "mcmmo",
	"mmoedit": "mcmmo", "mmoupdate": "mcmmo", "party": "mcmmo",

	// AuthMe
	"authme": "authme", "register": "authme", "login": "authme", "unregister": "authme",
	"changepassword": "authme", "email": "authme",

	// DiscordSRV
	"discord": "discordsrv", "discordsrv": "discordsrv", "link": "discordsrv", "unlink": "discordsrv",

	// Citizens
	"citizens": "citizens", "npc": "citizens", "trait": "citizens", "script": "citizens",

	// Votifier / NuVotifier
	"votifier": "votifier", "nuvotifier": "nuvotifier",

	// TAB
	"tab": "tab", "tabreload": "tab",

	// DeluxeMenus / DeluxeChat
	"deluxemenus": "deluxemenus", "dm": "deluxemenus", "deluxechat": "deluxechat",

	// Skript
	"skript": "skript", "sk": "skript",

	// HolographicDisplays
	"holographicdisplays": "holographicdisplays", "hd": "holographicdisplays", "hologram": "holographicdisplays",

	// ItemsAdder / Oraxen
	"itemsadder": "itemsadder", "ia": "itemsadder", "oraxen": "oraxen", "ox": "oraxen",

	// MythicMobs
	"mythicmobs": "mythicmobs", "mm": "mythicmobs", "mobs": "mythicmobs",

	// Shopkeepers
	"shopkeeper": "shopkeepers", "shopkeepers": "shopkeepers",

	// Permissions / bans
	"pex": "permissionsex", "permissionsex": "permissionsex",
	"litebans": "litebans", "ban": "litebans", "tempban": "litebans", "unban": "litebans",
	"mute": "litebans", "unmute": "litebans", "kick": "litebans", "warn": "litebans",
	"banmanager": "banmanager", "advancedban": "advancedban",

	// CMI
	"cmi": "cmi", "cmiban": "cmi",

	// Vanish
	"vanish-plugin": "supervanish", "supervanish": "supervanish", "premiumvanish": "premiumvanish", "v": "premiumvanish",

	// Economy / shops
	"shopguiplus": "shopguiplus", "shop": "shopguiplus", "quickshop": "quickshop", "qs": "quickshop",
	"auctionhouse": "auctionhouse", "ah": "auctionhouse", "jobs": "jobs", "jobsbrowser": "jobs",
	"playervaults": "playervaults", "pv": "playervaults", "ultimatestacker": "ultimatestacker", "stacker": "ultimatestacker",

	// Skins / proxies
	"skinsrestorer": "skinsrestorer", "skin": "skinsrestorer", "geyser": "geyser-spigot", "floodgate": "floodgate",

	// Misc utility
	"libsdisguises": "libsdisguises", "disguise": "libsdisguises", "undisguise": "libsdisguises",
	"nbtapi": "nbtapi", "areashield": "areashield", "orebfuscator": "orebfuscator", "antixray": "antixray",
	"spark": "spark", "paper": "paper", "purpur": "purpur",
}

// versionAliases mirrors botproto's versionCommandAliases. None of the
// detection methods in this package reads it.
var versionAliases = []string{"version", "ver", "about"}
