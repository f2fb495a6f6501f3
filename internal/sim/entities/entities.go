package entities

import "strings"

// Type is the concrete kind of an entity. Names match capacity-table keys.
type Type uint16

const (
	TypeUnknown Type = iota

	// Animals.
	TypeChicken
	TypeCow
	TypeMushroomCow
	TypeOcelot
	TypePig
	TypeSheep
	TypeWolf
	TypeHorse
	TypeRabbit

	// Monsters.
	TypeBlaze
	TypeCaveSpider
	TypeCreeper
	TypeEnderman
	TypeEndermite
	TypeGiant
	TypeGuardian
	TypePigZombie
	TypeSilverfish
	TypeSkeleton
	TypeSpider
	TypeWitch
	TypeWither
	TypeZombie

	TypeBat
	TypeSquid
	TypeVillager

	// Living, but outside the grouped hierarchies.
	TypeEnderDragon
	TypeGhast
	TypeIronGolem
	TypeMagmaCube
	TypeSlime
	TypeSnowman
	TypeArmorStand
	TypePlayer

	// Non-living.
	TypeArrow
	TypeBoat
	TypeDroppedItem
	TypeExperienceOrb
	TypeFallingBlock
	TypeItemFrame
	TypeMinecart
	TypePainting
	TypePrimedTNT

	typeCount
)

var typeNames = [typeCount]string{
	TypeUnknown:       "UNKNOWN",
	TypeChicken:       "CHICKEN",
	TypeCow:           "COW",
	TypeMushroomCow:   "MUSHROOM_COW",
	TypeOcelot:        "OCELOT",
	TypePig:           "PIG",
	TypeSheep:         "SHEEP",
	TypeWolf:          "WOLF",
	TypeHorse:         "HORSE",
	TypeRabbit:        "RABBIT",
	TypeBlaze:         "BLAZE",
	TypeCaveSpider:    "CAVE_SPIDER",
	TypeCreeper:       "CREEPER",
	TypeEnderman:      "ENDERMAN",
	TypeEndermite:     "ENDERMITE",
	TypeGiant:         "GIANT",
	TypeGuardian:      "GUARDIAN",
	TypePigZombie:     "PIG_ZOMBIE",
	TypeSilverfish:    "SILVERFISH",
	TypeSkeleton:      "SKELETON",
	TypeSpider:        "SPIDER",
	TypeWitch:         "WITCH",
	TypeWither:        "WITHER",
	TypeZombie:        "ZOMBIE",
	TypeBat:           "BAT",
	TypeSquid:         "SQUID",
	TypeVillager:      "VILLAGER",
	TypeEnderDragon:   "ENDER_DRAGON",
	TypeGhast:         "GHAST",
	TypeIronGolem:     "IRON_GOLEM",
	TypeMagmaCube:     "MAGMA_CUBE",
	TypeSlime:         "SLIME",
	TypeSnowman:       "SNOWMAN",
	TypeArmorStand:    "ARMOR_STAND",
	TypePlayer:        "PLAYER",
	TypeArrow:         "ARROW",
	TypeBoat:          "BOAT",
	TypeDroppedItem:   "DROPPED_ITEM",
	TypeExperienceOrb: "EXPERIENCE_ORB",
	TypeFallingBlock:  "FALLING_BLOCK",
	TypeItemFrame:     "ITEM_FRAME",
	TypeMinecart:      "MINECART",
	TypePainting:      "PAINTING",
	TypePrimedTNT:     "PRIMED_TNT",
}

var typeByName = func() map[string]Type {
	m := make(map[string]Type, typeCount)
	for i, n := range typeNames {
		m[n] = Type(i)
	}
	return m
}()

func (t Type) String() string {
	if t >= typeCount {
		return typeNames[TypeUnknown]
	}
	return typeNames[t]
}

// ParseType is case-sensitive, like capacity-table keys.
func ParseType(name string) (Type, bool) {
	t, ok := typeByName[name]
	return t, ok
}

func (t Type) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *Type) UnmarshalText(b []byte) error {
	v, ok := typeByName[strings.TrimSpace(string(b))]
	if !ok {
		v = TypeUnknown
	}
	*t = v
	return nil
}

// Category is the coarse grouping derived from Type.
type Category uint8

const (
	CategoryOther Category = iota
	CategoryAnimal
	CategoryMonster
	CategoryAmbient
	CategoryWaterMob
	CategoryNPC

	categoryCount
)

var categoryNames = [categoryCount]string{
	CategoryOther:    "OTHER",
	CategoryAnimal:   "ANIMAL",
	CategoryMonster:  "MONSTER",
	CategoryAmbient:  "AMBIENT",
	CategoryWaterMob: "WATER_MOB",
	CategoryNPC:      "NPC",
}

func (c Category) String() string {
	if c >= categoryCount {
		return categoryNames[CategoryOther]
	}
	return categoryNames[c]
}

func ParseCategory(name string) (Category, bool) {
	for i, n := range categoryNames {
		if n == name {
			return Category(i), true
		}
	}
	return CategoryOther, false
}

// Types not listed fall into CategoryOther.
var categoryByType = [typeCount]Category{
	TypeChicken:     CategoryAnimal,
	TypeCow:         CategoryAnimal,
	TypeMushroomCow: CategoryAnimal,
	TypeOcelot:      CategoryAnimal,
	TypePig:         CategoryAnimal,
	TypeSheep:       CategoryAnimal,
	TypeWolf:        CategoryAnimal,
	TypeHorse:       CategoryAnimal,
	TypeRabbit:      CategoryAnimal,

	TypeBlaze:      CategoryMonster,
	TypeCaveSpider: CategoryMonster,
	TypeCreeper:    CategoryMonster,
	TypeEnderman:   CategoryMonster,
	TypeEndermite:  CategoryMonster,
	TypeGiant:      CategoryMonster,
	TypeGuardian:   CategoryMonster,
	TypePigZombie:  CategoryMonster,
	TypeSilverfish: CategoryMonster,
	TypeSkeleton:   CategoryMonster,
	TypeSpider:     CategoryMonster,
	TypeWitch:      CategoryMonster,
	TypeWither:     CategoryMonster,
	TypeZombie:     CategoryMonster,

	TypeBat:      CategoryAmbient,
	TypeSquid:    CategoryWaterMob,
	TypeVillager: CategoryNPC,
}

func CategoryOf(t Type) Category {
	if t >= typeCount {
		return CategoryOther
	}
	return categoryByType[t]
}

// IsKnownKey reports whether name can appear as a capacity-table key.
func IsKnownKey(name string) bool {
	if _, ok := typeByName[name]; ok && name != typeNames[TypeUnknown] {
		return true
	}
	_, ok := ParseCategory(name)
	return ok
}

// Types lists every concrete type in declaration order.
func Types() []Type {
	out := make([]Type, 0, typeCount-1)
	for t := TypeUnknown + 1; t < typeCount; t++ {
		out = append(out, t)
	}
	return out
}
