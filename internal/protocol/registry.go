package protocol

import "github.com/google/uuid"

// Registry names used by the login sequence.
const (
	DimensionTypeRegistry = "minecraft:dimension_type"
	BiomeRegistry         = "minecraft:worldgen/biome"
	OverworldDimension    = "minecraft:overworld"
	OceanBiome            = "minecraft:ocean"
)

// DimensionCodec is the registry compound sent in JoinGame.
type DimensionCodec struct {
	DimensionTypes DimensionTypeRegistryEntries `nbt:"minecraft:dimension_type"`
	Biomes         BiomeRegistryEntries         `nbt:"minecraft:worldgen/biome"`
}

type DimensionTypeRegistryEntries struct {
	Type  string               `nbt:"type"`
	Value []DimensionTypeEntry `nbt:"value"`
}

type DimensionTypeEntry struct {
	Name    string        `nbt:"name"`
	ID      int32         `nbt:"id"`
	Element DimensionType `nbt:"element"`
}

// DimensionType describes the properties of a dimension. Flags are bytes on
// the wire.
type DimensionType struct {
	PiglinSafe         int8    `nbt:"piglin_safe"`
	Natural            int8    `nbt:"natural"`
	AmbientLight       float32 `nbt:"ambient_light"`
	Infiniburn         string  `nbt:"infiniburn"`
	RespawnAnchorWorks int8    `nbt:"respawn_anchor_works"`
	HasSkylight        int8    `nbt:"has_skylight"`
	BedWorks           int8    `nbt:"bed_works"`
	Effects            string  `nbt:"effects"`
	HasRaids           int8    `nbt:"has_raids"`
	MinY               int32   `nbt:"min_y"`
	Height             int32   `nbt:"height"`
	LogicalHeight      int32   `nbt:"logical_height"`
	CoordinateScale    float64 `nbt:"coordinate_scale"`
	Ultrawarm          int8    `nbt:"ultrawarm"`
	HasCeiling         int8    `nbt:"has_ceiling"`
}

type BiomeRegistryEntries struct {
	Type  string       `nbt:"type"`
	Value []BiomeEntry `nbt:"value"`
}

type BiomeEntry struct {
	Name    string `nbt:"name"`
	ID      int32  `nbt:"id"`
	Element Biome  `nbt:"element"`
}

type Biome struct {
	Precipitation string       `nbt:"precipitation"`
	Depth         float32      `nbt:"depth"`
	Temperature   float32      `nbt:"temperature"`
	Scale         float32      `nbt:"scale"`
	Downfall      float32      `nbt:"downfall"`
	Category      string       `nbt:"category"`
	Effects       BiomeEffects `nbt:"effects"`
}

type BiomeEffects struct {
	SkyColor      int32 `nbt:"sky_color"`
	WaterFogColor int32 `nbt:"water_fog_color"`
	FogColor      int32 `nbt:"fog_color"`
	WaterColor    int32 `nbt:"water_color"`
}

const oceanColor = 0x7FA1FF

// DefaultDimensionType returns the single overworld dimension the server offers.
func DefaultDimensionType() DimensionType {
	return DimensionType{
		Natural:         1,
		AmbientLight:    1.0,
		Infiniburn:      "#minecraft:infiniburn_overworld",
		HasSkylight:     1,
		Effects:         OverworldDimension,
		Height:          1,
		CoordinateScale: 1.0,
	}
}

// DefaultDimensionCodec returns a registry with one dimension type and one biome.
func DefaultDimensionCodec() DimensionCodec {
	return DimensionCodec{
		DimensionTypes: DimensionTypeRegistryEntries{
			Type: DimensionTypeRegistry,
			Value: []DimensionTypeEntry{
				{Name: OverworldDimension, ID: 0, Element: DefaultDimensionType()},
			},
		},
		Biomes: BiomeRegistryEntries{
			Type: BiomeRegistry,
			Value: []BiomeEntry{
				{
					Name: OceanBiome,
					ID:   0,
					Element: Biome{
						Precipitation: "none",
						Category:      "ocean",
						Effects: BiomeEffects{
							SkyColor:      oceanColor,
							WaterFogColor: oceanColor,
							FogColor:      oceanColor,
							WaterColor:    oceanColor,
						},
					},
				},
			},
		},
	}
}

// NewLoginSuccess returns the login confirmation sent for name. Every player
// gets the nil UUID.
func NewLoginSuccess(name string) LoginSuccess {
	return LoginSuccess{UUID: uuid.Nil, Username: name}
}

// NewJoinGame returns the join packet that places a creative player into a
// flat ocean world.
func NewJoinGame(maxPlayers int32) JoinGame {
	return JoinGame{
		EntityID:           0,
		GameMode:           1,
		PreviousGameMode:   -1,
		DimensionNames:     []string{OceanBiome},
		DimensionCodec:     DefaultDimensionCodec(),
		Dimension:          DefaultDimensionType(),
		DimensionName:      OceanBiome,
		HashedSeed:         0,
		MaxPlayers:         maxPlayers,
		ViewDistance:       8,
		SimulationDistance: 8,
		IsFlat:             true,
	}
}
